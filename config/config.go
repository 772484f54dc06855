package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"coopledger/database"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Logging
	LogLevel  string // logrus level name
	LogFormat string // "text" or "json"

	// NATS configuration
	NATSEnabled bool
	NATSServers string // NATS server addresses (comma-separated)

	// OpenTelemetry metrics
	OTelEnabled          bool
	OTelExporterType     string // "console", "otlp" or "none"
	OTelOTLPEndpoint     string
	OTelServiceName      string
	OTelExportIntervalMS int

	// Ledger behaviour
	MaturitySweepInterval    time.Duration
	AmortizationResidualMode string // "accept" or "flush"
	RateTieBreak             string // "last" or "highest"
	SavingsMinimumBalance    decimal.Decimal

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL combines the base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		NATSEnabled: os.Getenv("NATS_ENABLED") == "true",
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),

		OTelEnabled:          os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:     getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:     getEnvWithDefault("OTEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelServiceName:      getEnvWithDefault("OTEL_SERVICE_NAME", "coopledger"),
		OTelExportIntervalMS: 30000,

		MaturitySweepInterval:    time.Hour,
		AmortizationResidualMode: strings.ToLower(getEnvWithDefault("AMORTIZATION_RESIDUAL_MODE", "accept")),
		RateTieBreak:             strings.ToLower(getEnvWithDefault("RATE_TIE_BREAK", "last")),
		SavingsMinimumBalance:    decimal.Zero,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if interval := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); interval != "" {
		parsed, err := strconv.Atoi(interval)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("OTEL_EXPORT_INTERVAL_MS must be a positive integer, got %q", interval)
		}
		config.OTelExportIntervalMS = parsed
	}

	if sweep := os.Getenv("MATURITY_SWEEP_INTERVAL"); sweep != "" {
		parsed, err := time.ParseDuration(sweep)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("MATURITY_SWEEP_INTERVAL must be a positive duration, got %q", sweep)
		}
		config.MaturitySweepInterval = parsed
	}

	if floor := os.Getenv("SAVINGS_MINIMUM_BALANCE"); floor != "" {
		parsed, err := decimal.NewFromString(floor)
		if err != nil || parsed.IsNegative() {
			return nil, fmt.Errorf("SAVINGS_MINIMUM_BALANCE must be a non-negative decimal, got %q", floor)
		}
		config.SavingsMinimumBalance = parsed
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the enumerated settings and, outside tests, the required ones
func (c *Config) Validate() error {
	switch c.AmortizationResidualMode {
	case "accept", "flush":
	default:
		return fmt.Errorf("AMORTIZATION_RESIDUAL_MODE must be accept or flush, got %q", c.AmortizationResidualMode)
	}

	switch c.RateTieBreak {
	case "last", "highest":
	default:
		return fmt.Errorf("RATE_TIE_BREAK must be last or highest, got %q", c.RateTieBreak)
	}

	switch c.OTelExporterType {
	case "console", "otlp", "none":
	default:
		return fmt.Errorf("OTEL_EXPORTER_TYPE must be console, otlp or none, got %q", c.OTelExporterType)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be blank when provided")
		}
	}

	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:              "test",
		LogLevel:                 "debug",
		LogFormat:                "text",
		OTelExporterType:         "none",
		OTelServiceName:          "coopledger-test",
		OTelExportIntervalMS:     1000,
		MaturitySweepInterval:    time.Minute,
		AmortizationResidualMode: "accept",
		RateTieBreak:             "last",
		SavingsMinimumBalance:    decimal.Zero,
	}
}
