package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	CatalogBaseURL string
	CatalogTimeout time.Duration

	// empty disables the session cache
	RedisAddr     string
	RedisPassword string

	// empty disables checkout events
	KafkaBrokers  []string
	CheckoutTopic string
	// identifies this instance in published events and names its consumer group
	InstanceID string

	SessionTTL time.Duration
	Pricing    pricing.Policy
	Currency   string
}

// Load reads the configuration from the environment, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "production"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "50060"),
		CatalogBaseURL: getEnv("CATALOG_BASE_URL", "https://dummyjson.com"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		CheckoutTopic:  getEnv("CHECKOUT_TOPIC", "checkout-completed"),
		InstanceID:     getEnv("INSTANCE_ID", defaultInstanceID()),
		Currency:       getEnv("CURRENCY", "USD"),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogTimeout, err = getDuration("CATALOG_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	if cfg.Pricing, err = loadPricing(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPricing() (pricing.Policy, error) {
	p := pricing.DefaultPolicy()

	var err error
	if p.FreeShippingThreshold, err = getMoney("FREE_SHIPPING_THRESHOLD", p.FreeShippingThreshold); err != nil {
		return p, err
	}
	if p.ShippingFee, err = getMoney("SHIPPING_FEE", p.ShippingFee); err != nil {
		return p, err
	}
	if p.GiftWrapFee, err = getMoney("GIFT_WRAP_FEE", p.GiftWrapFee); err != nil {
		return p, err
	}
	if v := os.Getenv("TAX_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return p, fmt.Errorf("parse TAX_RATE: %w", err)
		}
		p.TaxRate = rate
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("pricing config: %w", err)
	}
	return p, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getMoney(key string, defaultValue domain.Money) (domain.Money, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	m, err := domain.MoneyFromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return m, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "storefront"
	}
	return host + "-" + uuid.NewString()[:8]
}
