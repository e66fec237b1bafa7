package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-accounts"
	"github.com/joho/godotenv"
)

// Config is the accounts service configuration. Values come from the
// environment, a .env file is loaded first when present.
type Config struct {
	Dev bool `env:"DEV" envDefault:"false"`

	// Addresses keep the variable names the frontend deployment uses
	FrontendAddress string `env:"ACCOUNTS_FRONTEND_ADDRESS" envDefault:"http://localhost:3000"`
	BackendAddress  string `env:"ACCOUNTS_BACKEND_ADDRESS" envDefault:"http://localhost:8080"`

	PhoneRegion    string   `env:"PHONE_REGION" envDefault:"US"`
	BootstrapRoles []string `env:"BOOTSTRAP_ROLES" envSeparator:","`
	UseHashid      bool     `env:"USE_HASHID" envDefault:"false"`

	HTTP     HTTPConfig              `envPrefix:"HTTP_"`
	DB       DBConfig                `envPrefix:"DB_"`
	Redis    RedisConfig             `envPrefix:"REDIS_"`
	AMQP     AMQPConfig              `envPrefix:"AMQP_"`
	Session  SessionConfig           `envPrefix:"SESSION_"`
	Lockout  LockoutConfig           `envPrefix:"LOCKOUT_"`
	Password accounts.PasswordPolicy `envPrefix:"PASSWORD_"`
	Log      LogConfig               `envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// CORSOrigins defaults to the frontend address
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

type DBConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"file:accounts.db?cache=shared"`
	// CreateSchema creates missing tables on startup
	CreateSchema bool `env:"CREATE_SCHEMA" envDefault:"true"`
}

type RedisConfig struct {
	Addr              string        `env:"ADDR" envDefault:"localhost:6379"`
	Password          string        `env:"PASSWORD"`
	DB                int           `env:"DB" envDefault:"0"`
	SessionPrefix     string        `env:"SESSION_PREFIX" envDefault:"accounts:session:"`
	InteractionPrefix string        `env:"INTERACTION_PREFIX" envDefault:"accounts:interaction:"`
	InteractionTTL    time.Duration `env:"INTERACTION_TTL" envDefault:"10m"`
}

type AMQPConfig struct {
	// URL is optional, notifications are logged when empty
	URL         string        `env:"URL"`
	Exchange    string        `env:"EXCHANGE" envDefault:"accounts.notifications"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`
	// DispatchTimeout bounds one background notification
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`
}

type SessionConfig struct {
	SigningKey string `env:"SIGNING_KEY"`
	Issuer     string `env:"ISSUER" envDefault:"go-accounts"`

	accounts.CookieConfig
}

type LockoutConfig struct {
	accounts.LockoutPolicy

	// Threshold is the per request escalation threshold, 0 disables it
	Threshold int `env:"THRESHOLD" envDefault:"0"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

const devSigningKey = "development-only-signing-key-change-me"

// Load reads the .env file if any and parses the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	return Parse()
}

// Parse reads the environment only
func Parse() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize trims values and fills derived defaults
func (c *Config) Sanitize() {
	c.FrontendAddress = strings.TrimRight(strings.TrimSpace(c.FrontendAddress), "/")
	c.BackendAddress = strings.TrimRight(strings.TrimSpace(c.BackendAddress), "/")
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))

	roles := c.BootstrapRoles[:0]
	for _, role := range c.BootstrapRoles {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	c.BootstrapRoles = roles

	if len(c.HTTP.CORSOrigins) == 0 && c.FrontendAddress != "" {
		c.HTTP.CORSOrigins = []string{c.FrontendAddress}
	}

	if c.Dev {
		c.Session.Secure = false
		if c.Session.SigningKey == "" {
			c.Session.SigningKey = devSigningKey
		}
	}
}

// Validate reports missing required values
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Session.SigningKey == "":
		errs = append(errs, errors.New("SESSION_SIGNING_KEY is required outside development"))
	case !c.Dev && len(c.Session.SigningKey) < 32:
		errs = append(errs, errors.New("SESSION_SIGNING_KEY must be at least 32 bytes"))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Lockout.Threshold < 0 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD cannot be negative"))
	}
	if c.Password.MinLength < 1 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be at least 1"))
	}

	return errors.Join(errs...)
}

// CORSOrigins returns the allowed origins joined for the fiber cors
// middleware
func (c *Config) CORSOrigins() string {
	return strings.Join(c.HTTP.CORSOrigins, ",")
}
