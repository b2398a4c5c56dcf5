// Package config holds the environment-driven configuration of the auth
// service. Values load through cleanenv; every field carries a usable
// development default so a bare `go run` comes up against a local stack.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration of the auth server
type Config struct {
	App       AppConfig
	Db        DbConfig
	Jwt       JwtConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
	Email     EmailConfig
}

type AppConfig struct {
	Host            string        `env:"APP_HOST" env-default:"0.0.0.0"`
	Port            uint16        `env:"APP_PORT" env-default:"4000"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// SlogLevel maps the configured level name onto a slog.Level
func (a AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(a.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Addr returns the host:port listen address
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type DbConfig struct {
	Host     string `env:"AUTH_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"AUTH_PG_PORT" env-default:"5432"`
	Database string `env:"AUTH_PG_DATABASE" env-default:"auth_db"`
	User     string `env:"AUTH_PG_USER" env-default:"auth"`
	Password string `env:"AUTH_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"AUTH_PG_SCHEMA" env-default:"auth"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DbConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

type JwtConfig struct {
	Secret             string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer             string        `env:"JWT_ISSUER" env-default:"vortex-auth"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" env-default:"168h"`
}

type PasswordConfig struct {
	MinLength        int           `env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	MaxLength        int           `env:"PASSWORD_MAX_LENGTH" env-default:"72"`
	BcryptCost       int           `env:"PASSWORD_BCRYPT_COST" env-default:"12"`
	ResetTokenExpiry time.Duration `env:"PASSWORD_RESET_TOKEN_EXPIRY" env-default:"1h"`
	ResetTokenLength int           `env:"PASSWORD_RESET_TOKEN_LENGTH" env-default:"32"`
	ResetURL         string        `env:"PASSWORD_RESET_URL" env-default:"http://localhost:3000/reset-password"`
}

type RateLimitConfig struct {
	MaxAttempts int           `env:"RATELIMIT_MAX_ATTEMPTS" env-default:"5"`
	Window      time.Duration `env:"RATELIMIT_WINDOW" env-default:"15m"`
}

type EventsConfig struct {
	Enabled   bool     `env:"EVENTS_ENABLED" env-default:"false"`
	Brokers   []string `env:"EVENTS_KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic     string   `env:"EVENTS_KAFKA_TOPIC" env-default:"auth-events"`
	QueueSize int      `env:"EVENTS_QUEUE_SIZE" env-default:"256"`
}

type EmailConfig struct {
	Enabled  bool   `env:"EMAIL_ENABLED" env-default:"false"`
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// Load reads the configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config from env: %w", err)
	}
	return cfg, nil
}
