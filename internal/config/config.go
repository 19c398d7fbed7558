package config

import (
	"errors"
	"os"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Default tuning values for the polling cycle and outbound HTTP.
const (
	DefaultCheckDelay  = 500 * time.Millisecond
	DefaultHTTPTimeout = 15 * time.Second
	DefaultUserAgent   = "CitrusNotify/1.0"
)

// Twitch holds the Helix app credentials (client-credentials grant).
type Twitch struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds application configuration. It is built once at startup and
// passed by reference to every component; nothing reads the environment
// after Load returns.
type Config struct {
	DatabaseURL   string        `yaml:"database_url"`
	RedisURL      string        `yaml:"redis_url"`
	ServerPort    string        `yaml:"server_port"`
	Twitch        Twitch        `yaml:"twitch"`
	YouTubeAPIKey string        `yaml:"youtube_api_key"`
	CheckDelay    time.Duration `yaml:"-"`
	HTTPTimeout   time.Duration `yaml:"-"`
	UserAgent     string        `yaml:"user_agent"`
	LogLevel      string        `yaml:"log_level"`
	LogPretty     bool          `yaml:"log_pretty"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the
// current directory first. DATABASE_URL is required; everything else is
// optional and falls back to defaults.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ServerPort:  os.Getenv("SERVER_PORT"),
		Twitch: Twitch{
			ClientID:     os.Getenv("TWITCH_CLIENT_ID"),
			ClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		},
		YouTubeAPIKey: os.Getenv("YOUTUBE_API_KEY"),
		UserAgent:     os.Getenv("USER_AGENT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		LogPretty:     os.Getenv("LOG_PRETTY") == "true" || os.Getenv("LOG_PRETTY") == "1",
	}
	if s := os.Getenv("CHECK_DELAY"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.CheckDelay = d
		}
	}
	if s := os.Getenv("HTTP_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.HTTPTimeout = d
		}
	}
	c.applyDefaults()
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.CheckDelay <= 0 {
		c.CheckDelay = DefaultCheckDelay
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}
