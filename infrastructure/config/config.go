package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment"`

	// AWS configuration
	AWSRegion        string `yaml:"awsRegion"`
	DynamoDBTable    string `yaml:"tableName"`
	DynamoDBEndpoint string `yaml:"dynamodbEndpoint"` // local override, e.g. DynamoDB Local
	GSI1IndexName    string `yaml:"gsi1IndexName"`
	GSI2IndexName    string `yaml:"gsi2IndexName"`
	EventBusName     string `yaml:"eventBusName"`
	MetricsNamespace string `yaml:"metricsNamespace"`

	// Storage engine
	StorageMaxAttempts    int           `yaml:"storageMaxAttempts"`
	StorageBaseDelay      time.Duration `yaml:"storageBaseDelay"`
	StorageMaxDelay       time.Duration `yaml:"storageMaxDelay"`
	BatchWriteSize        int           `yaml:"batchWriteSize"`
	BatchGetSize          int           `yaml:"batchGetSize"`
	CircuitBreakerEnabled bool          `yaml:"circuitBreakerEnabled"`

	// Picture counters
	CounterAtomicIncrement bool `yaml:"counterAtomicIncrement"`

	// Reconciliation
	ReconcileLockTTL time.Duration `yaml:"reconcileLockTTL"`

	// Logging and features
	LogLevel      string `yaml:"logLevel"`
	EnableMetrics bool   `yaml:"enableMetrics"`
	EnableTracing bool   `yaml:"enableTracing"`
}

// LoadConfig loads configuration from environment variables, then overlays
// the YAML file named by CONFIG_FILE when set.
func LoadConfig() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")
	cfg := &Config{
		Environment:      env,
		AWSRegion:        getEnv("AWS_REGION", "eu-west-1"),
		DynamoDBTable:    getEnv("TABLE_NAME", env+"-player-management"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		GSI1IndexName:    getEnv("GSI1_INDEX_NAME", "GSI1"),
		GSI2IndexName:    getEnv("GSI2_INDEX_NAME", "GSI2"),
		EventBusName:     getEnv("EVENT_BUS_NAME", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "PlayerManagement"),

		StorageMaxAttempts:    getEnvInt("STORAGE_MAX_ATTEMPTS", 3),
		StorageBaseDelay:      getEnvDuration("STORAGE_BASE_DELAY", 50*time.Millisecond),
		StorageMaxDelay:       getEnvDuration("STORAGE_MAX_DELAY", time.Second),
		BatchWriteSize:        getEnvInt("BATCH_WRITE_SIZE", 25),
		BatchGetSize:          getEnvInt("BATCH_GET_SIZE", 100),
		CircuitBreakerEnabled: getEnvBool("CIRCUIT_BREAKER_ENABLED", true),

		CounterAtomicIncrement: getEnvBool("COUNTER_ATOMIC_INCREMENT", false),
		ReconcileLockTTL:       getEnvDuration("RECONCILE_LOCK_TTL", 5*time.Minute),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlay replaces the fields the file sets and keeps the rest.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required")
	}
	if c.StorageMaxAttempts < 1 || c.StorageMaxAttempts > 5 {
		return fmt.Errorf("STORAGE_MAX_ATTEMPTS must be between 1 and 5, got %d", c.StorageMaxAttempts)
	}
	if c.BatchWriteSize < 1 || c.BatchWriteSize > 25 {
		return fmt.Errorf("BATCH_WRITE_SIZE must be between 1 and 25, got %d", c.BatchWriteSize)
	}
	if c.BatchGetSize < 1 || c.BatchGetSize > 100 {
		return fmt.Errorf("BATCH_GET_SIZE must be between 1 and 100, got %d", c.BatchGetSize)
	}
	if c.StorageBaseDelay < 0 || c.StorageMaxDelay < c.StorageBaseDelay {
		return fmt.Errorf("STORAGE_MAX_DELAY must not be below STORAGE_BASE_DELAY")
	}
	if c.IsProduction() && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
