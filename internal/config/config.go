// Package config loads settings from the environment, an optional .env file
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/database"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	Port string `mapstructure:"port"`

	DatabaseURL string `mapstructure:"database_url"`
	DBHost      string `mapstructure:"db_host"`
	DBPort      string `mapstructure:"db_port"`
	DBUser      string `mapstructure:"db_user"`
	DBPassword  string `mapstructure:"db_password"`
	DBName      string `mapstructure:"db_name"`
	DBSSLMode   string `mapstructure:"db_sslmode"`

	JWTSecret         string        `mapstructure:"supabase_jwt_secret"`
	JWTAudience       string        `mapstructure:"jwt_audience"`
	CancelTokenSecret string        `mapstructure:"cancel_token_secret"`
	CancelTokenTTL    time.Duration `mapstructure:"cancel_token_ttl"`
	SiteURL           string        `mapstructure:"site_url"`

	CMSGraphQLURL string `mapstructure:"cms_graphql_url"`
	CMSAuthToken  string `mapstructure:"cms_auth_token"`

	MailerSendAPIKey string `mapstructure:"mailersend_api_key"`
	MailFromEmail    string `mapstructure:"mail_from_email"`
	MailFromName     string `mapstructure:"mail_from_name"`

	NotifyMode  string `mapstructure:"notify_mode"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
	NotifyQueue string `mapstructure:"notify_queue"`

	RateLimitStore    string        `mapstructure:"rate_limit_store"`
	NATSURL           string        `mapstructure:"nats_url"`
	NATSBucket        string        `mapstructure:"nats_rate_limit_bucket"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	CapacityRateLimit int           `mapstructure:"capacity_rate_limit"`
	CancelRateLimit   int           `mapstructure:"cancel_rate_limit"`
	RegisterRateLimit int           `mapstructure:"register_rate_limit"`

	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`

	CORSAllowedOrigin string `mapstructure:"cors_allowed_origin"`
}

// Notification delivery modes.
const (
	NotifyDirect = "direct"
	NotifyQueue  = "queue"
	NotifyLog    = "log"
)

// Rate-limit counter backends.
const (
	RateLimitMemory = "memory"
	RateLimitNATS   = "nats"
)

var defaults = map[string]any{
	"port":                   "8080",
	"database_url":           "",
	"db_host":                "",
	"db_port":                "5432",
	"db_user":                "postgres",
	"db_password":            "",
	"db_name":                "postgres",
	"db_sslmode":             "require",
	"supabase_jwt_secret":    "",
	"jwt_audience":           "authenticated",
	"cancel_token_secret":    "",
	"cancel_token_ttl":       "720h",
	"site_url":               "http://localhost:3000",
	"cms_graphql_url":        "",
	"cms_auth_token":         "",
	"mailersend_api_key":     "",
	"mail_from_email":        "",
	"mail_from_name":         "Club Rides",
	"notify_mode":            NotifyDirect,
	"rabbitmq_url":           "",
	"notify_queue":           "promotion_notifications",
	"rate_limit_store":       RateLimitMemory,
	"nats_url":               "",
	"nats_rate_limit_bucket": "rate_limits",
	"rate_limit_window":      "1m",
	"capacity_rate_limit":    60,
	"cancel_rate_limit":      10,
	"register_rate_limit":    10,
	"store_timeout":          "5s",
	"notify_timeout":         "10s",
	"cors_allowed_origin":    "*",
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then the environment, which wins over both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.CancelTokenSecret == "" {
		cfg.CancelTokenSecret = cfg.JWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at request time in a
// confusing way. Missing database or JWT settings are allowed here; the
// affected endpoints report a configuration error instead.
func (c *Config) Validate() error {
	var problems []string

	switch c.NotifyMode {
	case NotifyDirect, NotifyLog:
	case NotifyQueue:
		if c.RabbitMQURL == "" {
			problems = append(problems, "RABBITMQ_URL is required when NOTIFY_MODE=queue")
		}
	default:
		problems = append(problems, fmt.Sprintf("NOTIFY_MODE %q is not one of direct, queue, log", c.NotifyMode))
	}

	switch c.RateLimitStore {
	case RateLimitMemory:
	case RateLimitNATS:
		if c.NATSURL == "" {
			problems = append(problems, "NATS_URL is required when RATE_LIMIT_STORE=nats")
		}
	default:
		problems = append(problems, fmt.Sprintf("RATE_LIMIT_STORE %q is not one of memory, nats", c.RateLimitStore))
	}

	if c.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW must be positive")
	}
	if c.CapacityRateLimit <= 0 || c.CancelRateLimit <= 0 || c.RegisterRateLimit <= 0 {
		problems = append(problems, "rate limits must be positive")
	}
	if c.StoreTimeout <= 0 || c.NotifyTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", model.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Database returns the connection settings for the registration store.
func (c *Config) Database() database.Config {
	return database.Config{
		URL:      c.DatabaseURL,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

// MailConfigured reports whether direct email delivery can work.
func (c *Config) MailConfigured() bool {
	return c.MailerSendAPIKey != "" && c.MailFromEmail != ""
}
