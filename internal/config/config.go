// Package config loads gateway configuration from STACKGATE_* environment
// variables and manages the CLI profile file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the gateway process.
type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Auth     AuthConfig
	State    StateConfig
	Notify   NotifyConfig
	Template TemplateConfig
	Log      LogConfig
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host            string        `env:"STACKGATE_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"STACKGATE_PORT" envDefault:"8000"`
	ReadTimeout     time.Duration `env:"STACKGATE_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"STACKGATE_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownGrace   time.Duration `env:"STACKGATE_SHUTDOWN_GRACE" envDefault:"10s"`
	MetricsEnabled  bool          `env:"STACKGATE_METRICS" envDefault:"true"`
	MaxRequestBytes int64         `env:"STACKGATE_MAX_REQUEST_BYTES" envDefault:"1048576"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfig holds the engine RPC connection settings.
type EngineConfig struct {
	Addr        string        `env:"STACKGATE_ENGINE_ADDR" envDefault:"127.0.0.1:9551"`
	CACert      string        `env:"STACKGATE_ENGINE_CA_CERT"`
	CallTimeout time.Duration `env:"STACKGATE_ENGINE_TIMEOUT" envDefault:"60s"`
}

// AuthConfig holds request authentication settings.
type AuthConfig struct {
	// Mode is sigv4 or none. Mode none skips signature checks and runs
	// every request as the dev subject; for local development only.
	Mode string `env:"STACKGATE_AUTH_MODE" envDefault:"sigv4"`
	// Passphrase unlocks the credential keystore.
	Passphrase string `env:"STACKGATE_KEYSTORE_PASSPHRASE"`
	// KeystoreFile overrides the keystore location; empty places it in the
	// state directory.
	KeystoreFile string        `env:"STACKGATE_KEYSTORE_FILE"`
	MaxSkew      time.Duration `env:"STACKGATE_AUTH_MAX_SKEW" envDefault:"15m"`
	DevTenant    string        `env:"STACKGATE_DEV_TENANT" envDefault:"dev"`
	DevPrincipal string        `env:"STACKGATE_DEV_PRINCIPAL" envDefault:"dev"`
}

// StateConfig holds on-disk state locations.
type StateConfig struct {
	// Dir holds the keystore and audit database.
	Dir string `env:"STACKGATE_STATE_DIR" envDefault:"/var/lib/stackgate"`
	// PolicyDir holds .rego authorization policies; empty allows every
	// action.
	PolicyDir string `env:"STACKGATE_POLICY_DIR"`
}

// NotifyConfig holds the event broker settings.
type NotifyConfig struct {
	// URL of the NATS broker; empty disables notifications.
	URL string `env:"STACKGATE_NATS_URL"`
}

// TemplateConfig bounds remote template retrieval.
type TemplateConfig struct {
	MaxBytes     int64         `env:"STACKGATE_TEMPLATE_MAX_BYTES" envDefault:"524288"`
	FetchTimeout time.Duration `env:"STACKGATE_TEMPLATE_FETCH_TIMEOUT" envDefault:"30s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `env:"STACKGATE_LOG_LEVEL" envDefault:"info"`
	// Format is console or json.
	Format string `env:"STACKGATE_LOG_FORMAT" envDefault:"console"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Engine); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.State); err != nil {
		return nil, fmt.Errorf("parsing state config: %w", err)
	}
	if err := env.Parse(&cfg.Notify); err != nil {
		return nil, fmt.Errorf("parsing notify config: %w", err)
	}
	if err := env.Parse(&cfg.Template); err != nil {
		return nil, fmt.Errorf("parsing template config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for a serving gateway.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("STACKGATE_PORT %d out of range", c.Server.Port)
	}
	if c.Engine.Addr == "" {
		return fmt.Errorf("STACKGATE_ENGINE_ADDR is required")
	}
	switch c.Auth.Mode {
	case "sigv4":
		if c.Auth.Passphrase == "" {
			return fmt.Errorf("STACKGATE_KEYSTORE_PASSPHRASE is required in sigv4 auth mode")
		}
	case "none":
	default:
		return fmt.Errorf("STACKGATE_AUTH_MODE must be sigv4 or none, got %q", c.Auth.Mode)
	}
	if c.Auth.MaxSkew <= 0 {
		return fmt.Errorf("STACKGATE_AUTH_MAX_SKEW must be positive")
	}
	if c.Template.MaxBytes <= 0 {
		return fmt.Errorf("STACKGATE_TEMPLATE_MAX_BYTES must be positive")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("STACKGATE_LOG_FORMAT must be console or json, got %q", c.Log.Format)
	}
	return nil
}
