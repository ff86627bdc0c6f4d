// Package config handles application configuration from environment
// variables and an optional YAML profile file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults and clamping bounds.
const (
	defaultThreshold = 1
	defaultDepthDays = 14
	maxDepthDays     = 365
)

// CredentialsState describes how complete the Telegram credentials are.
type CredentialsState string

// Credential states. Partial credentials are a configuration error;
// empty credentials select the demo feed.
const (
	CredentialsComplete CredentialsState = "complete"
	CredentialsPartial  CredentialsState = "partial"
	CredentialsEmpty    CredentialsState = "empty"
)

// Profile is the scan profile loaded from the YAML file. All keyword
// fields hold raw delimited text; parsing happens in internal/parse.
type Profile struct {
	Sources          string `yaml:"sources"`
	TitleKeywords    string `yaml:"title_keywords"`
	ProfileKeywords  string `yaml:"profile_keywords"`
	IndustryKeywords string `yaml:"industry_keywords"`
	Exclusions       string `yaml:"exclusions"`

	// Threshold is the minimum number of keyword blocks that must
	// match, 1 to 3.
	Threshold int `yaml:"threshold"`

	// ScanDepthDays limits how far back each source is scanned.
	ScanDepthDays int `yaml:"scan_depth_days"`

	// Sort is "newest_first" (default) or "oldest_first".
	Sort string `yaml:"sort"`
}

// Config holds the application configuration.
type Config struct {
	TelegramAPIID   int
	TelegramAPIHash string
	TelegramPhone   string

	DatabasePath string
	SessionPath  string
	ProfilePath  string
	LogLevel     string

	Profile Profile
}

// Load reads configuration from environment variables and the profile
// file. A missing profile file yields defaults, not an error.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramAPIHash: os.Getenv("TELEGRAM_API_HASH"),
		TelegramPhone:   os.Getenv("TELEGRAM_PHONE"),
		DatabasePath:    envOrDefault("DATABASE_PATH", "./data/jobradar.db"),
		SessionPath:     envOrDefault("SESSION_PATH", "./data/telegram.session"),
		ProfilePath:     envOrDefault("PROFILE_PATH", "./profile.yaml"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("TELEGRAM_API_ID"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_API_ID %q: %w", raw, err)
		}
		cfg.TelegramAPIID = id
	}

	profile, err := loadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	cfg.Profile = profile

	return cfg, nil
}

func loadProfile(path string) (Profile, error) {
	p := Profile{
		Threshold:     defaultThreshold,
		ScanDepthDays: defaultDepthDays,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}

	p.Threshold = clamp(p.Threshold, 1, 3, defaultThreshold)
	p.ScanDepthDays = clamp(p.ScanDepthDays, 1, maxDepthDays, defaultDepthDays)
	return p, nil
}

// Credentials reports whether the Telegram credentials are complete,
// partial or absent.
func (c *Config) Credentials() CredentialsState {
	set := 0
	for _, present := range []bool{c.TelegramAPIID != 0, c.TelegramAPIHash != "", c.TelegramPhone != ""} {
		if present {
			set++
		}
	}
	switch set {
	case 3:
		return CredentialsComplete
	case 0:
		return CredentialsEmpty
	default:
		return CredentialsPartial
	}
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
