// Package config loads configuration from YAML files, CHATCORE_*
// environment variables, and built-in defaults, in that priority order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Client  Client  `mapstructure:"client"`
	Server  Server  `mapstructure:"server"`
	Logging Logging `mapstructure:"logging"`
}

// Client configures the realtime chat client.
type Client struct {
	Host              string        `mapstructure:"host"`
	Secure            bool          `mapstructure:"secure"`
	Environment       string        `mapstructure:"environment"`
	DevPort           int           `mapstructure:"dev_port"`
	ChatbotID         string        `mapstructure:"chatbot_id"`
	UserID            string        `mapstructure:"user_id"`
	SessionID         string        `mapstructure:"session_id"`
	HistoryURL        string        `mapstructure:"history_url"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Backoff           Backoff       `mapstructure:"backoff"`
}

// Backoff configures the reconnection policy.
type Backoff struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Factor       float64       `mapstructure:"factor"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Server configures the development chat backend.
type Server struct {
	Port           int           `mapstructure:"port"`
	RedisURL       string        `mapstructure:"redis_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	HistoryWindow  int           `mapstructure:"history_window"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	TypingDelay    time.Duration `mapstructure:"typing_delay"`
}

// Logging configures the zap logger.
type Logging struct {
	Level      string `mapstructure:"level"`  // debug | info | warn | error
	Format     string `mapstructure:"format"` // json | console
	File       string `mapstructure:"file"`   // empty logs to stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Watch reloads the config file on change and delivers updates on the
// returned channel. Only meaningful when Load was given a file path.
func Watch(path string) (<-chan Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	updates := make(chan Config, 1)
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		select {
		case updates <- cfg:
		default:
			// Channel full, skip this update.
		}
	})
	return updates, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.host", "localhost")
	v.SetDefault("client.secure", false)
	v.SetDefault("client.environment", "development")
	v.SetDefault("client.dev_port", 8000)
	v.SetDefault("client.chatbot_id", "")
	v.SetDefault("client.user_id", "web-user")
	v.SetDefault("client.session_id", "")
	v.SetDefault("client.history_url", "")
	v.SetDefault("client.connect_timeout", 10*time.Second)
	v.SetDefault("client.heartbeat_interval", 30*time.Second)
	v.SetDefault("client.backoff.initial_delay", time.Second)
	v.SetDefault("client.backoff.max_delay", 30*time.Second)
	v.SetDefault("client.backoff.factor", 1.5)
	v.SetDefault("client.backoff.max_attempts", 5)

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.history_window", 50)
	v.SetDefault("server.session_ttl", 24*time.Hour)
	v.SetDefault("server.typing_delay", 150*time.Millisecond)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}
