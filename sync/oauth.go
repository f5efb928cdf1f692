// ABOUTME: OAuth configuration and token management for the Google Calendar API
// ABOUTME: Loads client secrets, stores tokens with 0600 perms and persists refreshed tokens
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	stdsync "sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// ErrNoToken is returned when no token has been saved yet.
var ErrNoToken = errors.New("no authentication token found")

// Scopes requested from Google.
var Scopes = []string{calendar.CalendarEventsScope}

// NewOAuthConfig builds the OAuth2 config from a Google "installed app" client
// secrets file. When credentialsPath is empty or missing, GOOGLE_CLIENT_ID and
// GOOGLE_CLIENT_SECRET are used instead.
func NewOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		switch {
		case err == nil:
			cfg, err := google.ConfigFromJSON(data, Scopes...)
			if err != nil {
				return nil, fmt.Errorf("failed to parse client secrets %s: %w", credentialsPath, err)
			}
			return cfg, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read client secrets: %w", err)
		}
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured. Set calendar.credentials_path or GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}, nil
}

// SaveToken writes the token to path with restricted permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("token cannot be nil")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoToken, path)
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	return &token, nil
}

// persistingTokenSource writes the token back to disk whenever the underlying
// source hands out a new access token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger zerolog.Logger

	mu   stdsync.Mutex
	last string
}

// NewPersistingTokenSource wraps the config's refreshing source for token.
func NewPersistingTokenSource(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, path string, logger zerolog.Logger) oauth2.TokenSource {
	return &persistingTokenSource{
		base:   oauth2.ReuseTokenSource(token, cfg.TokenSource(ctx, token)),
		path:   path,
		logger: logger,
		last:   token.AccessToken,
	}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		if err := SaveToken(s.path, token); err != nil {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist refreshed token")
		} else {
			s.logger.Debug().Str("path", s.path).Msg("refreshed token saved")
		}
		s.last = token.AccessToken
	}
	return token, nil
}
