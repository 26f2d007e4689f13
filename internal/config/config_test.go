package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database:    DatabaseConfig{Driver: "postgres"},
		JWT:         JWTConfig{SecretKey: defaultJWTSecret},
		Payment:     PaymentConfig{Provider: "sandbox"},
		Blockchain:  BlockchainConfig{Minter: "simulated"},
		Fulfillment: FulfillmentConfig{Mode: ModeSynchronous, MaxMintRetries: 5},
	}
}

func productionConfig() *Config {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.JWT.SecretKey = "a-real-secret"
	cfg.Database.Password = "hunter2"
	cfg.Payment = PaymentConfig{Provider: "stripe", StripeWebhookSecret: "whsec_live"}
	cfg.Fulfillment.Mode = ModeWebhook
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
	require.NoError(t, productionConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"default jwt secret in production", func(c *Config) { c.JWT.SecretKey = defaultJWTSecret }},
		{"missing database password in production", func(c *Config) { c.Database.Password = "" }},
		{"sqlite in production", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"unknown database driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown fulfillment mode", func(c *Config) { c.Fulfillment.Mode = "eventual" }},
		{"no mint retries", func(c *Config) { c.Fulfillment.MaxMintRetries = 0 }},
		{"stripe without webhook secret", func(c *Config) { c.Payment.StripeWebhookSecret = "" }},
		{"commerce without webhook secret", func(c *Config) { c.Payment = PaymentConfig{Provider: "commerce"} }},
		{"sandbox in production", func(c *Config) { c.Payment = PaymentConfig{Provider: "sandbox"} }},
		{"unknown payment provider", func(c *Config) { c.Payment.Provider = "paypal" }},
		{"relayer without url", func(c *Config) { c.Blockchain.Minter = "relayer" }},
		{"unknown minter", func(c *Config) { c.Blockchain.Minter = "hardhat" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := productionConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ModeDefaultsByEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("FULFILLMENT_MODE", "")
	t.Setenv("PAYMENT_PROVIDER", "sandbox")
	t.Setenv("MINTER", "simulated")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MINT_TIMEOUT", "45s")
	t.Setenv("MINT_MAX_RETRIES", "7")
	t.Setenv("MINT_RETRY_BACKOFF", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeSynchronous, cfg.Fulfillment.Mode)
	assert.Equal(t, 45*time.Second, cfg.Fulfillment.MintTimeout)
	assert.Equal(t, 7, cfg.Fulfillment.MaxMintRetries)
	assert.Equal(t, 30*time.Second, cfg.Fulfillment.RetryBackoff)
	assert.False(t, cfg.IsProduction())

	t.Setenv("FULFILLMENT_MODE", ModeWebhook)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, ModeWebhook, cfg.Fulfillment.Mode)
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", User: "app", Password: "pw", Database: "tickets", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=tickets sslmode=disable", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Database: "/tmp/tickets.db"}
	assert.Equal(t, "/tmp/tickets.db?_busy_timeout=5000&_foreign_keys=on", lite.DSN())
}
