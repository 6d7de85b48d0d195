package app

import (
	"errors"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	AuthConfig

	AuditPGDSN string `envconfig:"AUDIT_PG_DSN"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

// AuthConfig locates the authentication backend. The session CLI needs
// only this part of the configuration.
type AuthConfig struct {
	AuthBaseURL string        `envconfig:"AUTH_BASE_URL" default:"http://127.0.0.1:5000/api"`
	AuthTimeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"15s"`
	LogFormat   string        `envconfig:"LOG_FORMAT" default:"pretty"`
}

// LoadAuthConfig reads AuthConfig from environment variables.
func LoadAuthConfig() (*AuthConfig, error) {
	var cfg AuthConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AuthConfig) validate() error {
	u, err := url.Parse(c.AuthBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("auth base url must be an absolute url")
	}
	return nil
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if err := c.AuthConfig.validate(); err != nil {
		return err
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// AuditEnabled reports whether access events go to Postgres.
func (c *Config) AuditEnabled() bool {
	return c != nil && c.AuditPGDSN != ""
}
