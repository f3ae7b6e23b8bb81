// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	// WebhookSecret signs storefront webhook tokens (HS256). Empty disables checks.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Printer selects the registered provider: lulu, or mock for local runs.
	Printer string `envconfig:"PRINTER" default:"lulu"`

	// Lulu
	LuluMode              string        `envconfig:"LULU_MODE" default:"sandbox"`
	LuluSandboxAPIKey     string        `envconfig:"LULU_SANDBOX_API_KEY"`
	LuluProductionAPIKey  string        `envconfig:"LULU_PRODUCTION_API_KEY"`
	LuluSandboxBaseURL    string        `envconfig:"LULU_SANDBOX_BASE_URL" default:"https://api.sandbox.lulu.com"`
	LuluProductionBaseURL string        `envconfig:"LULU_PRODUCTION_BASE_URL" default:"https://api.lulu.com"`
	LuluUseMock           bool          `envconfig:"LULU_USE_MOCK" default:"false"`
	LuluTimeout           time.Duration `envconfig:"LULU_TIMEOUT" default:"30s"`
	LuluRateLimit         float64       `envconfig:"LULU_RATE_LIMIT" default:"5"`
	LuluRateBurst         int           `envconfig:"LULU_RATE_BURST" default:"5"`

	// Fulfillment
	ContactEmail         string        `envconfig:"CONTACT_EMAIL"`
	AutoCompleteOrders   string        `envconfig:"AUTO_COMPLETE_ORDERS" default:"never"`
	ShippingEnabled      bool          `envconfig:"SHIPPING_ENABLED" default:"false"`
	ShippingPackageLabel string        `envconfig:"SHIPPING_PACKAGE_LABEL" default:"Print"`
	ShippingFeeLabel     string        `envconfig:"SHIPPING_FEE_LABEL" default:"Standard"`
	ShippingHandlingFee  string        `envconfig:"SHIPPING_HANDLING_FEE" default:"0"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	// Store base address, used as destination when pricing a single product.
	StoreAddress1 string `envconfig:"STORE_ADDRESS_1"`
	StoreAddress2 string `envconfig:"STORE_ADDRESS_2"`
	StoreCity     string `envconfig:"STORE_CITY"`
	StoreState    string `envconfig:"STORE_STATE"`
	StorePostcode string `envconfig:"STORE_POSTCODE"`
	StoreCountry  string `envconfig:"STORE_COUNTRY" default:"US"`

	// Storage
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"printbridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables. Variables from a
// .env file in the working directory are applied first when the file exists;
// the real environment takes precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes enumerated settings and rejects impossible values.
// Unknown modes fall back to sandbox and unknown auto-complete settings to never.
func (c *Config) Validate() error {
	c.LuluMode = string(printer.ParseMode(c.LuluMode))
	c.AutoCompleteOrders = string(domain.ParseAutoCompleteMode(strings.TrimSpace(c.AutoCompleteOrders)))

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.LuluTimeout <= 0 {
		return fmt.Errorf("invalid LULU_TIMEOUT %s", c.LuluTimeout)
	}
	if c.LuluRateLimit < 0 {
		return fmt.Errorf("invalid LULU_RATE_LIMIT %v", c.LuluRateLimit)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("invalid SWEEP_INTERVAL %s", c.SweepInterval)
	}
	if _, err := decimal.NewFromString(c.ShippingHandlingFee); err != nil {
		return fmt.Errorf("invalid SHIPPING_HANDLING_FEE %q: %w", c.ShippingHandlingFee, err)
	}
	if strings.TrimSpace(c.ShippingFeeLabel) == "" {
		c.ShippingFeeLabel = "Standard"
	}
	return nil
}

// Credentials returns the printer credentials.
func (c *Config) Credentials() printer.Credentials {
	return printer.Credentials{
		Mode:          printer.ParseMode(c.LuluMode),
		SandboxKey:    c.LuluSandboxAPIKey,
		ProductionKey: c.LuluProductionAPIKey,
	}
}

// Lulu returns the Lulu client configuration without a token store.
func (c *Config) Lulu() lulu.Config {
	return lulu.Config{
		Credentials:       c.Credentials(),
		SandboxBaseURL:    strings.TrimRight(c.LuluSandboxBaseURL, "/"),
		ProductionBaseURL: strings.TrimRight(c.LuluProductionBaseURL, "/"),
		Timeout:           c.LuluTimeout,
		RateLimit:         c.LuluRateLimit,
		RateBurst:         c.LuluRateBurst,
		UseMock:           c.LuluUseMock,
	}
}

// Fulfillment returns the fulfillment service configuration.
func (c *Config) Fulfillment() fulfillment.Config {
	return fulfillment.Config{
		AutoComplete:         c.AutoComplete(),
		ContactEmail:         c.ContactEmail,
		ShippingLevel:        printer.ShippingMail,
		ShippingEnabled:      c.ShippingEnabled,
		ShippingPackageLabel: c.ShippingPackageLabel,
		ShippingFeeLabel:     c.ShippingFeeLabel,
		HandlingFee:          c.HandlingFee(),
		StoreAddress:         c.StoreAddress(),
	}
}

// AutoComplete returns the parsed auto-complete setting.
func (c *Config) AutoComplete() domain.AutoCompleteMode {
	return domain.ParseAutoCompleteMode(c.AutoCompleteOrders)
}

// HandlingFee returns the flat fee added to shipping rates.
func (c *Config) HandlingFee() decimal.Decimal {
	fee, err := decimal.NewFromString(c.ShippingHandlingFee)
	if err != nil {
		return decimal.Zero
	}
	return fee
}

// StoreAddress returns the store base address as a printer destination.
func (c *Config) StoreAddress() printer.ShippingAddress {
	return printer.ShippingAddress{
		CountryCode: c.StoreCountry,
		StateCode:   c.StoreState,
		City:        c.StoreCity,
		Postcode:    c.StorePostcode,
		Street1:     c.StoreAddress1,
		Street2:     c.StoreAddress2,
	}
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("printer", c.Printer),
		attribute.String("lulu.mode", c.LuluMode),
		attribute.Bool("lulu.mock", c.LuluUseMock),
		attribute.Bool("shipping.enabled", c.ShippingEnabled),
		attribute.String("orders.auto_complete", c.AutoCompleteOrders),
	}
}
