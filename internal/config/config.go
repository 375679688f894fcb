// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/playlist-collab/internal/catalog"
	"github.com/sakif/playlist-collab/internal/presence"
)

// Config holds everything cmd/server needs to build the server.
type Config struct {
	Port   int
	DBPath string

	JWTSecret string

	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	PresenceTimeout       time.Duration
	PresenceSweepInterval time.Duration

	Spotify catalog.SpotifyConfig
}

// Load reads a .env file if one exists, then the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		DBPath:    getEnvOrDefault("DB_PATH", "data/playlists.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		LogLevel:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
		Spotify: catalog.SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			APIURL:       getEnvOrDefault("SPOTIFY_API_URL", catalog.DefaultSpotifyAPIURL),
			TokenURL:     getEnvOrDefault("SPOTIFY_TOKEN_URL", catalog.DefaultSpotifyTokenURL),
		},
	}

	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PORT: %w", err))
	}
	cfg.Port = port

	cfg.PresenceTimeout, err = durationEnv("PRESENCE_TIMEOUT", presence.DefaultTimeout)
	errs = append(errs, err)
	cfg.PresenceSweepInterval, err = durationEnv("PRESENCE_SWEEP_INTERVAL", 30*time.Second)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if _, ok := levels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json; got %q", c.LogFormat))
	}
	if c.PresenceTimeout <= 0 {
		errs = append(errs, errors.New("PRESENCE_TIMEOUT must be positive"))
	}
	if c.PresenceSweepInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_SWEEP_INTERVAL must be positive"))
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

// SpotifyEnabled reports whether catalog credentials were supplied.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levels[c.LogLevel]}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
