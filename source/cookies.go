// ABOUTME: Session cookie loading for the scheduling source
// ABOUTME: Auto-detects Netscape cookie jars and "name=value; name=value" strings
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// LoadCookies reads cookies from path. A missing file yields no cookies and
// no error.
func LoadCookies(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	return ParseCookies(string(data)), nil
}

// ParseCookies treats content with tabs as a Netscape cookie jar and anything
// else as a cookie header value.
func ParseCookies(content string) map[string]string {
	if strings.Contains(content, "\t") {
		return parseNetscape(content)
	}
	return parseHeader(content)
}

func parseNetscape(content string) map[string]string {
	cookies := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 7 {
			continue
		}
		cookies[parts[5]] = parts[6]
	}
	return cookies
}

func parseHeader(content string) map[string]string {
	cookies := make(map[string]string)
	content = strings.ReplaceAll(strings.TrimSpace(content), "; ", ";")
	for _, pair := range strings.Split(content, ";") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		cookies[name] = value
	}
	return cookies
}
