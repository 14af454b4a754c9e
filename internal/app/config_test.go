package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulip-tech/order-service/internal/remote"
	"github.com/tulip-tech/order-service/pkg/breaker"
)

func validConfig() Config {
	b := breaker.Config{
		FailureRateThreshold: 0.5,
		MinimumCalls:         10,
		OpenStateDuration:    30 * time.Second,
		HalfOpenTrialCalls:   3,
		Window:               time.Minute,
	}
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://orders@localhost/orders",
		Inventory:   remote.Config{URL: "http://product-service:8081"},
		Payment:     remote.Config{URL: "http://payment-service:8082"},
		Breakers:    BreakersConfig{Inventory: b, Payment: b},
		Enrichment:  EnrichmentConfig{Workers: 16},
		RateLimit:   RateLimitConfig{Rate: 50, Burst: 100},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "NoDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }, errMsg: "database URL"},
		{name: "NoInventory", mutate: func(c *Config) { c.Inventory.URL = "" }, errMsg: "inventory URL"},
		{name: "NoPayment", mutate: func(c *Config) { c.Payment.URL = "" }, errMsg: "payment URL"},
		{name: "NoWorkers", mutate: func(c *Config) { c.Enrichment.Workers = 0 }, errMsg: "workers"},
		{name: "NoRate", mutate: func(c *Config) { c.RateLimit.Rate = 0 }, errMsg: "rate limit"},
		{
			name:   "BadBreaker",
			mutate: func(c *Config) { c.Breakers.Payment.FailureRateThreshold = 2 },
			errMsg: "payment breaker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/orders")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/orders", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
