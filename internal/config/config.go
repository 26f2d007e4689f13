// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Fulfillment modes select the confirmation strategy.
const (
	ModeSynchronous = "sync"
	ModeWebhook     = "webhook"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Blockchain  BlockchainConfig
	Payment     PaymentConfig
	Fulfillment FulfillmentConfig
	PubNub      PubNubConfig
	Log         LogConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
	SeedDemo     bool
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// EventTTL bounds how long a processed webhook event id is remembered.
	EventTTL time.Duration
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
	// LocalDir holds metadata files when no AWS credentials are set.
	LocalDir        string
}

type BlockchainConfig struct {
	Network         string
	Minter          string // simulated | relayer
	RelayerURL      string
	RelayerAPIKey   string
	BackendWallet   string
	ContractAddress string
}

type PaymentConfig struct {
	Provider            string // stripe | commerce | sandbox
	StripeSecretKey     string
	StripeWebhookSecret string
	CommerceAPIKey      string
	CommerceAPIURL      string
	CommerceWebhookKey  string
	SandboxWebhookKey   string
	SuccessURL          string
	CancelURL           string
	DefaultCurrency     string
	Timeout             time.Duration
}

type FulfillmentConfig struct {
	Mode           string
	MintTimeout    time.Duration
	MaxMintRetries int
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	RetryInterval  time.Duration
	RetryBatchSize int
	EnableWorker   bool
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	environment := getEnv("ENVIRONMENT", "development")
	defaultMode := ModeSynchronous
	if environment == "production" {
		defaultMode = ModeWebhook
	}

	config := &Config{
		Environment: environment,
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "unchained_tickets"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
			SeedDemo:     getEnvAsBool("DB_SEED_DEMO", false),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			EventTTL: getEnvAsDuration("WEBHOOK_EVENT_TTL", "72h"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "unchained-ticket-metadata"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
			LocalDir:        getEnv("LOCAL_UPLOAD_DIR", "./uploads"),
		},
		Blockchain: BlockchainConfig{
			Network:         getEnv("BLOCKCHAIN_NETWORK", "base-sepolia"),
			Minter:          getEnv("MINTER", "simulated"),
			RelayerURL:      getEnv("MINT_RELAYER_URL", ""),
			RelayerAPIKey:   getEnv("MINT_RELAYER_API_KEY", ""),
			BackendWallet:   getEnv("MINT_BACKEND_WALLET", ""),
			ContractAddress: getEnv("BLOCKCHAIN_CONTRACT_ADDRESS", ""),
		},
		Payment: PaymentConfig{
			Provider:            getEnv("PAYMENT_PROVIDER", "sandbox"),
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			CommerceAPIKey:      getEnv("COMMERCE_API_KEY", ""),
			CommerceAPIURL:      getEnv("COMMERCE_API_URL", "https://api.commerce.coinbase.com"),
			CommerceWebhookKey:  getEnv("COMMERCE_WEBHOOK_SECRET", ""),
			SandboxWebhookKey:   getEnv("SANDBOX_WEBHOOK_SECRET", "sandbox-webhook-secret"),
			SuccessURL:          getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:           getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "USD"),
			Timeout:             getEnvAsDuration("PAYMENT_TIMEOUT", "15s"),
		},
		Fulfillment: FulfillmentConfig{
			Mode:           getEnv("FULFILLMENT_MODE", defaultMode),
			MintTimeout:    getEnvAsDuration("MINT_TIMEOUT", "30s"),
			MaxMintRetries: getEnvAsInt("MINT_MAX_RETRIES", 5),
			RetryBackoff:   getEnvAsDuration("MINT_RETRY_BACKOFF", "30s"),
			MaxBackoff:     getEnvAsDuration("MINT_MAX_BACKOFF", "30m"),
			RetryInterval:  getEnvAsDuration("MINT_RETRY_INTERVAL", "1m"),
			RetryBatchSize: getEnvAsInt("MINT_RETRY_BATCH", 20),
			EnableWorker:   getEnvAsBool("MINT_RETRY_WORKER", true),
		},
		PubNub: PubNubConfig{
			PublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
			SubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
			SecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
			UserID:       getEnv("PUBNUB_USER_ID", "unchained-fulfillment"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Environment == "production" {
			return fmt.Errorf("sqlite database driver cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Fulfillment.Mode {
	case ModeSynchronous, ModeWebhook:
	default:
		return fmt.Errorf("unknown fulfillment mode %q", c.Fulfillment.Mode)
	}

	if c.Fulfillment.MaxMintRetries < 1 {
		return fmt.Errorf("MINT_MAX_RETRIES must be at least 1")
	}

	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.StripeWebhookSecret == "" && c.Environment == "production" {
			return fmt.Errorf("stripe webhook secret is required in production")
		}
	case "commerce":
		if c.Payment.CommerceWebhookKey == "" && c.Environment == "production" {
			return fmt.Errorf("commerce webhook secret is required in production")
		}
	case "sandbox":
		if c.Environment == "production" {
			return fmt.Errorf("sandbox payment provider cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}

	switch c.Blockchain.Minter {
	case "simulated":
	case "relayer":
		if c.Blockchain.RelayerURL == "" {
			return fmt.Errorf("MINT_RELAYER_URL is required for the relayer minter")
		}
	default:
		return fmt.Errorf("unknown minter %q", c.Blockchain.Minter)
	}

	return nil
}

// IsProduction reports whether the deployment runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
