// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Platform      PlatformConfig      `mapstructure:"platform"`
	XP            XPConfig            `mapstructure:"xp"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Events        EventsConfig        `mapstructure:"events"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	// TimeZone decides calendar days for streaks and daily caps.
	TimeZone string `mapstructure:"time_zone"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	PoolSize         int           `mapstructure:"pool_size"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Disabled bool   `mapstructure:"disabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// TelegramConfig holds the announcement bot configuration.
// Notifications go to the log when Token is empty.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// PlatformConfig holds the community platform API settings used to look up
// member profiles. Lookups are disabled when APIKey is empty.
type PlatformConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// XPConfig holds grant engine settings.
type XPConfig struct {
	MaxPerGrant       int64         `mapstructure:"max_per_grant"`
	SideEffectTimeout time.Duration `mapstructure:"side_effect_timeout"`
}

// LeaderboardConfig holds leaderboard settings.
type LeaderboardConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
}

// EventsConfig holds event matcher settings.
type EventsConfig struct {
	Actions     []ActionMapping `mapstructure:"actions"`
	LockTimeout time.Duration   `mapstructure:"lock_timeout"`
}

// ActionMapping maps one inbound webhook action to an internal event type.
// Actions contain dots, so they are listed rather than used as map keys.
type ActionMapping struct {
	Action    string `mapstructure:"action"`
	EventType string `mapstructure:"event_type"`
}

// ActionMap returns the configured actions keyed by inbound action.
func (e *EventsConfig) ActionMap() map[string]string {
	m := make(map[string]string, len(e.Actions))
	for _, a := range e.Actions {
		m[a.Action] = a.EventType
	}
	return m
}

// NotificationsConfig holds notification dispatch settings.
type NotificationsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	BaseURL string        `mapstructure:"base_url"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the configured time zone.
func (a *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", a.TimeZone, err)
	}
	return loc, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, REDIS_ADDR, SERVER_WEBHOOK_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.XP.MaxPerGrant < 1 {
		return errors.New("xp.max_per_grant must be positive")
	}
	if c.Leaderboard.MaxLimit < 1 || c.Leaderboard.DefaultLimit < 1 || c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return errors.New("leaderboard limits must satisfy 1 <= default_limit <= max_limit")
	}
	if _, err := c.App.Location(); err != nil {
		return err
	}
	if !c.App.IsDevelopment() && c.Server.WebhookSecret == "" {
		return errors.New("server.webhook_secret is required outside development")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.time_zone", "UTC")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.webhook_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "levelup")
	v.SetDefault("database.name", "levelup")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.statement_timeout", "15s")

	v.SetDefault("redis.disabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("platform.base_url", "https://api.whop.com/v5")
	v.SetDefault("platform.timeout", "5s")

	v.SetDefault("xp.max_per_grant", 10000)
	v.SetDefault("xp.side_effect_timeout", "5s")

	v.SetDefault("leaderboard.cache_ttl", "5m")
	v.SetDefault("leaderboard.default_limit", 50)
	v.SetDefault("leaderboard.max_limit", 100)

	v.SetDefault("events.actions", []map[string]string{
		{"action": "message.created", "event_type": "message.created"},
		{"action": "payment.succeeded", "event_type": "purchase.completed"},
		{"action": "course.section_completed", "event_type": "course.completed"},
		{"action": "membership.created", "event_type": "member.joined"},
		{"action": "membership.deleted", "event_type": "member.left"},
	})
	v.SetDefault("events.lock_timeout", "10s")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.timeout", "10s")
}
