package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Reporting configuration
	ReportingCurrency string // target currency for the consolidated report
	ProcessName       string // default cash-flow process (e.g. "contractual")

	// Pipeline configuration
	StepRetryCount int // attempts per pipeline step before it is marked Failed

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Reporting defaults
		ReportingCurrency: "USD",
		ProcessName:       "contractual",

		// Pipeline defaults
		StepRetryCount: 3,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	if ccy := os.Getenv("REPORTING_CCY"); ccy != "" {
		config.ReportingCurrency = strings.ToUpper(strings.TrimSpace(ccy))
	}
	if name := os.Getenv("PROCESS_NAME"); name != "" {
		config.ProcessName = strings.TrimSpace(name)
	}
	if retries := os.Getenv("PIPELINE_RETRY_COUNT"); retries != "" {
		if parsed, err := strconv.Atoi(retries); err == nil && parsed > 0 {
			config.StepRetryCount = parsed
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	if len(config.ReportingCurrency) != 3 {
		return nil, fmt.Errorf("REPORTING_CCY must be a 3-letter currency code, got %q", config.ReportingCurrency)
	}

	return config, nil
}
