// Package config provides centralized configuration loaded from environment
// variables. Shared by the scrape, clean and auth commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultAPIBase    = "https://fantasysports.yahooapis.com"
	DefaultSport      = "nfl"
	DefaultLeagueID   = "871189"
	DefaultTokenFile  = "./auth/oauth2.json"
	DefaultRawDir     = "/data/yahoo/raw"
	DefaultPlayersOut = "/data/yahoo/inter/players.json"
	DefaultScanEnd    = 100
	DefaultDelay      = 5 * time.Second
	DefaultMaxReauth  = 3
	DefaultTransient  = 2
	DefaultFlattenCap = 100
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Yahoo credentials
	ClientID     string
	ClientSecret string
	TokenFile    string

	// Yahoo fantasy API
	APIBase  string
	Sport    string
	LeagueID string

	// Filesystem
	RawDir     string
	PlayersOut string

	// Harvester
	ScanEnd          int
	Delay            time.Duration
	MaxReauth        int
	TransientRetries int
	ProactiveRefresh bool

	// Flattener
	FlattenLimit int

	// Logging
	LogLevel  string
	LogFormat string
}

// ErrInvalid wraps every value Load rejects.
var ErrInvalid = errors.New("invalid configuration")

// Load reads configuration from environment variables with sensible defaults.
// Credentials may be empty here; the auth package falls back to the ones
// stored in the token file and fails if neither is present.
func Load() (*Config, error) {
	cfg := &Config{
		ClientID:     envOr("YAHOO_CLIENT_ID", ""),
		ClientSecret: envOr("YAHOO_CLIENT_SECRET", ""),
		TokenFile:    envOr("YAHOO_TOKEN_FILE", DefaultTokenFile),

		APIBase:  strings.TrimRight(envOr("YAHOO_API_BASE", DefaultAPIBase), "/"),
		Sport:    envOr("YAHOO_SPORT", DefaultSport),
		LeagueID: envOr("YAHOO_LEAGUE_ID", DefaultLeagueID),

		RawDir:     envOr("YAHOO_RAW_DIR", DefaultRawDir),
		PlayersOut: envOr("YAHOO_PLAYERS_OUT", DefaultPlayersOut),

		ScanEnd:          envInt("HARVEST_SCAN_END", DefaultScanEnd),
		Delay:            time.Duration(envInt("HARVEST_DELAY_MS", int(DefaultDelay/time.Millisecond))) * time.Millisecond,
		MaxReauth:        envInt("HARVEST_MAX_REAUTH", DefaultMaxReauth),
		TransientRetries: envInt("HARVEST_TRANSIENT_RETRIES", DefaultTransient),
		ProactiveRefresh: envBool("HARVEST_PROACTIVE_REFRESH", false),

		FlattenLimit: envInt("FLATTEN_LIMIT", DefaultFlattenCap),

		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", DefaultLogLevel)),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", DefaultLogFormat)),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ScanEnd < 2:
		return fmt.Errorf("%w: HARVEST_SCAN_END must be at least 2, got %d", ErrInvalid, c.ScanEnd)
	case c.Delay < 0:
		return fmt.Errorf("%w: HARVEST_DELAY_MS must not be negative, got %s", ErrInvalid, c.Delay)
	case c.MaxReauth < 1:
		return fmt.Errorf("%w: HARVEST_MAX_REAUTH must be at least 1, got %d", ErrInvalid, c.MaxReauth)
	case c.TransientRetries < 0:
		return fmt.Errorf("%w: HARVEST_TRANSIENT_RETRIES must not be negative, got %d", ErrInvalid, c.TransientRetries)
	}
	return nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}
