package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration for the courier service.
type Config struct {
	Addr        string `env:"COURIER_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"COURIER_DB_DSN"`
	NATSURL     string `env:"COURIER_NATS_URL"`

	// DeliveryBackend selects how rendered messages leave the system:
	// "http" posts to the provider API, "smtp" relays through an MTA.
	DeliveryBackend string `env:"COURIER_DELIVERY_BACKEND" envDefault:"http"`
	ProviderBaseURL string `env:"COURIER_PROVIDER_URL"`
	ProviderAPIKey  string `env:"COURIER_PROVIDER_API_KEY"`
	FromAddress     string `env:"COURIER_FROM" envDefault:"no-reply@courier.local"`

	SMTPHost     string `env:"COURIER_SMTP_HOST"`
	SMTPPort     int    `env:"COURIER_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"COURIER_SMTP_USERNAME"`
	SMTPPassword string `env:"COURIER_SMTP_PASSWORD"`

	ResetURL  string `env:"COURIER_RESET_URL" envDefault:"http://localhost:5173/reset"`
	LoginLink string `env:"COURIER_LOGIN_URL" envDefault:"http://localhost:5173/login"`

	Workers      int           `env:"COURIER_WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"COURIER_POLL_INTERVAL" envDefault:"500ms"`
	LeaseTTL     time.Duration `env:"COURIER_LEASE_TTL" envDefault:"30s"`

	AllowedOrigins []string `env:"COURIER_CORS_ORIGINS" envSeparator:","`
}

// Load returns a Config populated from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("COURIER_DB_DSN is required")
	}
	switch cfg.DeliveryBackend {
	case "http":
		if cfg.ProviderBaseURL == "" {
			return Config{}, fmt.Errorf("COURIER_PROVIDER_URL is required for the http backend")
		}
	case "smtp":
		if cfg.SMTPHost == "" {
			return Config{}, fmt.Errorf("COURIER_SMTP_HOST is required for the smtp backend")
		}
	default:
		return Config{}, fmt.Errorf("invalid COURIER_DELIVERY_BACKEND: %q", cfg.DeliveryBackend)
	}

	return cfg, nil
}
