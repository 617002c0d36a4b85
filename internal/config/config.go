package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Environment    string
	Port           string
	LogLevel       slog.Level
	RequestTimeout time.Duration

	Database DatabaseConfig
	RedisURL string
	Casdoor  CasdoorConfig
	Events   EventsConfig
	Mail     MailConfig
	Retry    RetryConfig

	CORSAllowedOrigins []string
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

func (c CasdoorConfig) Enabled() bool {
	return c.Endpoint != ""
}

// EventsConfig selects the change-notification transport. Without brokers the
// in-process channel transport is used.
type EventsConfig struct {
	KafkaBrokers []string
	Topic        string
}

type MailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

type RetryConfig struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadConfig reads the environment, after loading an optional .env file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=learning port=5432 sslmode=disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("EVENTS_TOPIC", "course-events")

	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@learning.local")
	v.SetDefault("MAIL_FROM_NAME", "Learning Platform")

	v.SetDefault("RETRY_ATTEMPTS", 3)
	v.SetDefault("RETRY_INITIAL_BACKOFF", "100ms")
	v.SetDefault("RETRY_MAX_BACKOFF", "1s")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Environment:    v.GetString("ENVIRONMENT"),
		Port:           v.GetString("PORT"),
		LogLevel:       level,
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("DATABASE_DRIVER")),
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
		},
		RedisURL: v.GetString("REDIS_URL"),
		Casdoor: CasdoorConfig{
			Endpoint:     v.GetString("CASDOOR_ENDPOINT"),
			ClientID:     v.GetString("CASDOOR_CLIENT_ID"),
			ClientSecret: v.GetString("CASDOOR_CLIENT_SECRET"),
			Cert:         v.GetString("CASDOOR_CERT"),
			Organization: v.GetString("CASDOOR_ORGANIZATION"),
			Application:  v.GetString("CASDOOR_APPLICATION"),
		},
		Events: EventsConfig{
			KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:        v.GetString("EVENTS_TOPIC"),
		},
		Mail: MailConfig{
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
			FromName:       v.GetString("MAIL_FROM_NAME"),
		},
		Retry: RetryConfig{
			Attempts:       v.GetInt("RETRY_ATTEMPTS"),
			InitialBackoff: v.GetDuration("RETRY_INITIAL_BACKOFF"),
			MaxBackoff:     v.GetDuration("RETRY_MAX_BACKOFF"),
		},
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Port == "" {
		problems = append(problems, "PORT is required")
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q is not supported", c.Database.Driver))
	}
	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Events.Topic == "" {
		problems = append(problems, "EVENTS_TOPIC is required")
	}
	if c.Retry.Attempts < 1 {
		problems = append(problems, "RETRY_ATTEMPTS must be at least 1")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		problems = append(problems, "RETRY_MAX_BACKOFF must not be lower than RETRY_INITIAL_BACKOFF")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
