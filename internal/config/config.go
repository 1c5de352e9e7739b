// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8002).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port used for OTP codes and rate-limit counters.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis password; empty for no auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database number.
	RedisDB int `mapstructure:"REDIS_DB"`

	// JWTSecret is the HS256 signing secret for access tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim on issued tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// AccessTokenTTLMinutes is the session token lifetime in minutes.
	AccessTokenTTLMinutes int `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPLength is the number of digits in a generated OTP code.
	OTPLength int `mapstructure:"OTP_LENGTH"`
	// OTPExpireMinutes is the OTP lifetime in minutes.
	OTPExpireMinutes int `mapstructure:"OTP_EXPIRE_MINUTES"`
	// OTPMaxResends is the resend ceiling within one cooldown window.
	OTPMaxResends int `mapstructure:"OTP_MAX_RESENDS"`
	// OTPCooldownMinutes is the resend/lockout window in minutes.
	OTPCooldownMinutes int `mapstructure:"OTP_COOLDOWN_MINUTES"`
	// OTPMaxAttempts is the verify-attempt ceiling per issued code.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`

	// RateLimitWindowSeconds is the fixed window for per-client request limiting.
	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitMaxRequests is the request ceiling per window.
	RateLimitMaxRequests int `mapstructure:"MAX_REQUESTS"`

	// UsersServiceURL is the base URL of the users service used to create the
	// external identity during registration.
	UsersServiceURL string `mapstructure:"USERS_SERVICE_URL"`

	// SMTPHost, SMTPPort, SMTPUser, SMTPPassword, SMTPFrom configure the OTP
	// email dispatcher. Empty SMTPHost disables dispatch (codes are only stored).
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SweepIntervalMinutes is how often the sweeper runs its expiry passes.
	SweepIntervalMinutes int `mapstructure:"SWEEP_INTERVAL_MINUTES"`
	// LogRetentionDays is how long request logs are kept before the stale-log sweep removes them.
	LogRetentionDays int `mapstructure:"LOG_RETENTION_DAYS"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8002")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "op-core")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 30)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_EXPIRE_MINUTES", 5)
	v.SetDefault("OTP_MAX_RESENDS", 3)
	v.SetDefault("OTP_COOLDOWN_MINUTES", 5)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", 60)
	v.SetDefault("MAX_REQUESTS", 100)
	v.SetDefault("USERS_SERVICE_URL", "http://users-service:8000")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@op-platform.local")
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 15)
	v.SetDefault("LOG_RETENTION_DAYS", 30)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" && cfg.Env == "production" {
		return nil, errors.New("config: JWT_SECRET must be set when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		return nil, errors.New("config: OTP_LENGTH must be between 4 and 10")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RateLimitWindowSeconds < 1 || cfg.RateLimitMaxRequests < 1 {
		return nil, errors.New("config: rate limit window and ceiling must be positive")
	}

	return &cfg, nil
}

// AccessTokenTTL returns the session token lifetime. Defaults to 30m when unset.
func (c *Config) AccessTokenTTL() time.Duration {
	if c.AccessTokenTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// OTPExpiry returns the OTP lifetime. Defaults to 5m when unset.
func (c *Config) OTPExpiry() time.Duration {
	if c.OTPExpireMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.OTPExpireMinutes) * time.Minute
}

// OTPCooldown returns the resend/lockout window. Defaults to 5m when unset.
func (c *Config) OTPCooldown() time.Duration {
	if c.OTPCooldownMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.OTPCooldownMinutes) * time.Minute
}

// RateLimitWindow returns the fixed request-limit window.
func (c *Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// SweepInterval returns how often background sweeps run. Defaults to 15m.
func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
