package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	ServerPort    string `yaml:"server_port"`
	Twitch        Twitch `yaml:"twitch"`
	YouTubeAPIKey string `yaml:"youtube_api_key"`
	CheckDelay    string `yaml:"check_delay"`
	HTTPTimeout   string `yaml:"http_timeout"`
	UserAgent     string `yaml:"user_agent"`
	LogLevel      string `yaml:"log_level"`
	LogPretty     bool   `yaml:"log_pretty"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
// Durations (check_delay, http_timeout) are Go duration strings, e.g. "500ms".
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:   f.DatabaseURL,
		RedisURL:      f.RedisURL,
		ServerPort:    f.ServerPort,
		Twitch:        f.Twitch,
		YouTubeAPIKey: f.YouTubeAPIKey,
		UserAgent:     f.UserAgent,
		LogLevel:      f.LogLevel,
		LogPretty:     f.LogPretty,
	}
	if f.CheckDelay != "" {
		if d, err := time.ParseDuration(f.CheckDelay); err == nil {
			c.CheckDelay = d
		}
	}
	if f.HTTPTimeout != "" {
		if d, err := time.ParseDuration(f.HTTPTimeout); err == nil {
			c.HTTPTimeout = d
		}
	}
	c.applyDefaults()
	return c, nil
}
