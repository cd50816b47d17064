// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config loads the gateway settings from the environment with
caarlos0/env.

	cfg, err := config.Load()

The result is built once in cmd/api and handed to constructors; nothing
else reads the environment. Each collaborator (tokens, SSO, OTP, providers)
has its own nested struct and env prefix.
*/
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

var environments = []string{"development", "staging", "production"}

// Config is the full runtime configuration of the API server.
type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG"       envDefault:"false"`

	DatabaseURL   string `env:"DATABASE_URL,notEmpty"`
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`
	RedisURL      string `env:"REDIS_URL,notEmpty"`

	// AllowedOriginSuffix is matched against the Origin of cross-site calls
	// outside development.
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"vottery.com"`
	CookieSecure        bool   `env:"COOKIE_SECURE"         envDefault:"true"`

	Postgres   PostgresConfig   `envPrefix:"PG_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Token      TokenConfig      `envPrefix:"JWT_"`
	SSO        SSOConfig        `envPrefix:"SSO_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	OTP        OTPConfig        `envPrefix:"OTP_"`
	Enrollment EnrollmentConfig `envPrefix:"ENROLLMENT_"`
	SendGrid   SendGridConfig   `envPrefix:"SENDGRID_"`
	Twilio     TwilioConfig     `envPrefix:"TWILIO_"`
}

// PostgresConfig sizes the pgx pool.
type PostgresConfig struct {
	MaxConns int32 `env:"MAX_CONNS" envDefault:"25"`
	MinConns int32 `env:"MIN_CONNS" envDefault:"5"`
}

// RedisConfig sizes the go-redis pool.
type RedisConfig struct {
	PoolSize     int `env:"POOL_SIZE"      envDefault:"10"`
	MinIdleConns int `env:"MIN_IDLE_CONNS" envDefault:"2"`
}

// TokenConfig holds the HS256 secrets and lifetimes of the credential pair.
type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET,notEmpty"`
	RefreshSecret string        `env:"REFRESH_SECRET,notEmpty"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"1h"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	Issuer        string        `env:"ISSUER"            envDefault:"votegate"`
}

// SSOConfig holds the secret shared with the external identity provider.
type SSOConfig struct {
	SharedSecret string        `env:"SHARED_SECRET,notEmpty"`
	ClockSkew    time.Duration `env:"CLOCK_SKEW" envDefault:"0s"`

	// FailureRedirectURL receives GET callback rejections as ?error=<code>.
	FailureRedirectURL string `env:"FAILURE_REDIRECT_URL"`
}

type SessionConfig struct {
	TTL time.Duration `env:"TTL" envDefault:"24h"`

	// StrictEnrollmentGate turns unfinished first-time enrollment from a
	// warning into a completion blocker.
	StrictEnrollmentGate bool `env:"STRICT_ENROLLMENT_GATE" envDefault:"false"`
}

type OTPConfig struct {
	TTL         time.Duration `env:"TTL"          envDefault:"10m"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Length      int           `env:"LENGTH"       envDefault:"6"`

	// At most IssueLimit codes per session and channel within IssueWindow.
	IssueLimit  int           `env:"ISSUE_LIMIT"  envDefault:"5"`
	IssueWindow time.Duration `env:"ISSUE_WINDOW" envDefault:"15m"`
}

type EnrollmentConfig struct {
	BackupCodeCount       int     `env:"BACKUP_CODE_COUNT"       envDefault:"10"`
	SecurityQuestionCount int     `env:"SECURITY_QUESTION_COUNT" envDefault:"5"`
	SecurityPassRatio     float64 `env:"SECURITY_PASS_RATIO"     envDefault:"0.6"`
}

// SendGridConfig enables email delivery. Without APIKey codes are only logged.
type SendGridConfig struct {
	APIKey    string `env:"API_KEY"`
	FromEmail string `env:"FROM_EMAIL" envDefault:"noreply@vottery.com"`
	BaseURL   string `env:"BASE_URL"   envDefault:"https://api.sendgrid.com"`
}

// TwilioConfig enables SMS delivery, or delegated phone verification when
// VerifyServiceSID is set.
type TwilioConfig struct {
	AccountSID       string `env:"ACCOUNT_SID"`
	AuthToken        string `env:"AUTH_TOKEN"`
	PhoneNumber      string `env:"PHONE_NUMBER"`
	VerifyServiceSID string `env:"VERIFY_SERVICE_SID"`
	APIBaseURL       string `env:"API_BASE_URL"    envDefault:"https://api.twilio.com"`
	VerifyBaseURL    string `env:"VERIFY_BASE_URL" envDefault:"https://verify.twilio.com"`
}

// Load reads and validates the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config_parse_failed: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case !slices.Contains(environments, c.Environment):
		return fmt.Errorf("config: ENVIRONMENT must be one of %v", environments)
	case c.IsProduction() && !c.CookieSecure:
		return fmt.Errorf("config: COOKIE_SECURE cannot be disabled in production")
	case c.Token.AccessSecret == c.Token.RefreshSecret:
		return fmt.Errorf("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	case c.OTP.MaxAttempts < 1:
		return fmt.Errorf("config: OTP_MAX_ATTEMPTS must be at least 1")
	case c.OTP.Length < 4 || c.OTP.Length > 10:
		return fmt.Errorf("config: OTP_LENGTH must be between 4 and 10")
	case c.Enrollment.SecurityPassRatio <= 0 || c.Enrollment.SecurityPassRatio > 1:
		return fmt.Errorf("config: ENROLLMENT_SECURITY_PASS_RATIO must be in (0, 1]")
	case c.Postgres.MinConns > c.Postgres.MaxConns:
		return fmt.Errorf("config: PG_MIN_CONNS exceeds PG_MAX_CONNS")
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

func (c *Config) IsProduction() bool { return c.Environment == "production" }
