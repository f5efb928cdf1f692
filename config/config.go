// ABOUTME: YAML configuration for the scheduling source, calendar and reminder policy
// ABOUTME: Handles defaults, .env loading, environment overrides and validation
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "doctosync"

	DefaultDateFormat = "%Y-%m-%d"
	DefaultUserAgent  = "Mozilla/5.0"
	DefaultTimezone   = "Europe/Paris"
	DefaultCalendarID = "primary"
	DefaultSchedule   = "*/30 * * * *"

	DefaultNotificationMinutes = 30
	DefaultFirstOfDayMinutes   = 0
)

var (
	ErrMissingSourceURL  = errors.New("api.url is required")
	ErrMissingCalendarID = errors.New("calendar.id is required")
)

// StringList accepts either a YAML scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = StringList{s}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// APIConfig describes the scheduling source feed.
type APIConfig struct {
	URL        string     `yaml:"url"`
	AgendaIDs  StringList `yaml:"agenda_ids"`
	DateFormat string     `yaml:"date_format"`
	CookiePath string     `yaml:"cookie_path"`
	UserAgent  string     `yaml:"user_agent"`
}

// CalendarConfig describes the destination Google calendar and its credentials.
type CalendarConfig struct {
	ID              string `yaml:"id"`
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	Timezone        string `yaml:"timezone"`
}

// PolicyConfig holds reminder and location settings. Notification and
// FirstOfDay are pointers so an explicit 0 is kept apart from "not set".
type PolicyConfig struct {
	Notification *int   `yaml:"notification"`
	FirstOfDay   *int   `yaml:"first_of_day"`
	Location     string `yaml:"localisation"`
}

// SyncConfig tunes the runner.
type SyncConfig struct {
	Workers  int    `yaml:"workers"`
	Schedule string `yaml:"schedule"`
	DBPath   string `yaml:"db_path"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Calendar CalendarConfig `yaml:"calendar"`
	Policy   PolicyConfig   `yaml:"config"`
	Sync     SyncConfig     `yaml:"sync"`
}

// DefaultPath returns the XDG config location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DataDir returns the XDG data directory for tokens and the run history.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills missing values with defaults.
func (c *Config) Normalize() {
	if c.API.DateFormat == "" {
		c.API.DateFormat = DefaultDateFormat
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.Calendar.ID == "" {
		c.Calendar.ID = DefaultCalendarID
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = DefaultTimezone
	}
	if c.Calendar.TokenPath == "" {
		c.Calendar.TokenPath = filepath.Join(DataDir(), "token.json")
	}
	if c.Policy.Notification == nil {
		n := DefaultNotificationMinutes
		c.Policy.Notification = &n
	}
	if c.Policy.FirstOfDay == nil {
		n := DefaultFirstOfDayMinutes
		c.Policy.FirstOfDay = &n
	}
	c.Policy.Location = strings.TrimSpace(c.Policy.Location)
	if c.Sync.Workers < 1 {
		c.Sync.Workers = 1
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = DefaultSchedule
	}
	if c.Sync.DBPath == "" {
		c.Sync.DBPath = filepath.Join(DataDir(), "history.db")
	}
}

// Validate reports configuration problems that must stop the program before
// any week is processed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return ErrMissingSourceURL
	}
	if strings.TrimSpace(c.Calendar.ID) == "" {
		return ErrMissingCalendarID
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("invalid calendar.timezone %q: %w", c.Calendar.Timezone, err)
	}
	if c.Policy.Notification != nil && *c.Policy.Notification < 0 {
		return fmt.Errorf("config.notification must not be negative, got %d", *c.Policy.Notification)
	}
	if c.Policy.FirstOfDay != nil && *c.Policy.FirstOfDay < 0 {
		return fmt.Errorf("config.first_of_day must not be negative, got %d", *c.Policy.FirstOfDay)
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		return fmt.Errorf("invalid sync.schedule %q: %w", c.Sync.Schedule, err)
	}
	return nil
}

// Location returns the configured calendar time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Calendar.Timezone)
}

// Load reads the YAML file at path, applies a .env file found next to it or in
// the working directory, then environment overrides, defaults and validation.
// Relative paths inside the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only need paths.
func Read(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	cfg.Normalize()
	cfg.resolvePaths(filepath.Dir(path))

	return &cfg, nil
}

// loadDotEnv loads the first .env file that exists. Variables already set in
// the environment win.
func loadDotEnv(candidates ...string) {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// applyEnvOverrides applies environment variable overrides:
// - DOCTOSYNC_API_URL
// - DOCTOSYNC_CALENDAR_ID
// - DOCTOSYNC_TIMEZONE
// - DOCTOSYNC_LOCATION
// - DOCTOSYNC_COOKIE_PATH.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCTOSYNC_API_URL"); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv("DOCTOSYNC_CALENDAR_ID"); v != "" {
		cfg.Calendar.ID = v
	}
	if v := os.Getenv("DOCTOSYNC_TIMEZONE"); v != "" {
		cfg.Calendar.Timezone = v
	}
	if v := os.Getenv("DOCTOSYNC_LOCATION"); v != "" {
		cfg.Policy.Location = v
	}
	if v := os.Getenv("DOCTOSYNC_COOKIE_PATH"); v != "" {
		cfg.API.CookiePath = v
	}
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.API.CookiePath)
	resolve(&c.Calendar.CredentialsPath)
	resolve(&c.Calendar.TokenPath)
	resolve(&c.Sync.DBPath)
}

// Save writes cfg to path with 0600 permissions via a temp file and rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".doctosync-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod config: %w", err)
	}
	return os.Rename(tmpName, path)
}
