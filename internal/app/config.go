package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/tulip-tech/order-service/internal/remote"
	"github.com/tulip-tech/order-service/pkg/breaker"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PayerLabel  string `default:"Me" usage:"Payer label sent with every charge" flag:"payer-label"`
	Inventory   remote.Config
	Payment     remote.Config
	Breakers    BreakersConfig
	Enrichment  EnrichmentConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// BreakersConfig holds one breaker configuration per guarded dependency.
type BreakersConfig struct {
	Inventory breaker.Config
	Payment   breaker.Config
}

// EnrichmentConfig controls the order listing fan-out.
type EnrichmentConfig struct {
	Workers int `default:"16" usage:"Max concurrent product/payment lookups while listing orders"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Rate  float64 `default:"50"  usage:"Sustained requests per second per client"`
	Burst int     `default:"100" usage:"Burst size per client"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	case c.Inventory.URL == "":
		return errors.New("inventory URL is required: set ORDERS_INVENTORY_URL")
	case c.Payment.URL == "":
		return errors.New("payment URL is required: set ORDERS_PAYMENT_URL")
	case c.Enrichment.Workers <= 0:
		return errors.Errorf("enrichment workers must be positive, got %d", c.Enrichment.Workers)
	case c.RateLimit.Rate <= 0:
		return errors.Errorf("rate limit must be positive, got %v", c.RateLimit.Rate)
	}
	if err := c.Breakers.Inventory.Validate(); err != nil {
		return errors.Wrap(err, "inventory breaker")
	}
	if err := c.Breakers.Payment.Validate(); err != nil {
		return errors.Wrap(err, "payment breaker")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the ORDERS_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
