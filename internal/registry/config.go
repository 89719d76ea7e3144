package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "XTC_CONNECTOR_"

// ConfigValidator is the Strategy interface for validating configuration.
// Each KV backend (Redis, DynamoDB, memory) provides its own validator for
// its backend-specific section.
type ConfigValidator interface {
	// Validate validates the KV store configuration for this backend.
	Validate(config *KVStoreConfig) error

	// Type returns the type identifier for this validator (e.g., "redis", "dynamodb").
	Type() string
}

var (
	// validatorRegistry stores all registered config validators.
	validatorRegistry = make(map[string]ConfigValidator)

	// validatorRegistryMutex protects the validator registry from concurrent access.
	validatorRegistryMutex sync.RWMutex
)

// ValidationStrategyRegistry provides methods to register and retrieve config validators.
type ValidationStrategyRegistry struct{}

// Register registers a config validator.
// This is called automatically by each backend's init() function.
// Panics if validator is nil, type is empty, or type is already registered.
func (r *ValidationStrategyRegistry) Register(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}

	validatorRegistry[validator.Type()] = validator
}

// Get retrieves a validator by type.
func (r *ValidationStrategyRegistry) Get(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// RegisterValidator registers a validator with the default registry.
// This is the preferred way to register validators from init() functions.
func RegisterValidator(validator ConfigValidator) {
	defaultValidationRegistry.Register(validator)
}

// GetValidator retrieves a validator by type from the default registry.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	return defaultValidationRegistry.Get(validatorType)
}

var defaultValidationRegistry = &ValidationStrategyRegistry{}

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *Config
}

// NewConfigManager creates a new configuration manager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns a configuration with sensible defaults. Database
// name and credentials have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:              "mysql",
			Host:              "localhost",
			Port:              3306,
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Mapping: MappingConfig{
			TransactionalPush: false,
		},
		Links: LinksConfig{
			Enabled: false,
			Prefix:  "xtc:links",
			KVStore: KVStoreConfig{
				Type: "memory",
				RedisConfig: RedisConfig{
					Endpoints:    []string{"localhost:6379"},
					PoolSize:     10,
					MinIdleConns: 5,
				},
				MaxRetries:   3,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Journal: JournalConfig{
			Enabled:         false,
			QueueType:       "memory",
			QueueBufferSize: 10000,
			RedisPrefix:     "xtc:journal",
			Redis: RedisConfig{
				Endpoints: []string{"localhost:6379"},
				PoolSize:  10,
			},
			BatchSize:    100,
			DrainRate:    50,
			PollInterval: 100 * time.Millisecond,
			MaxRetries:   5,
			KafkaConfig: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "xtc-connector-journal",
				GroupID:         "xtc-connector-journal",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     10 * time.Second,
				RequiredAcks:    -1,      // All replicas
				MaxMessageBytes: 1000000, // 1MB
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024, // 10MB
				MaxWait:         100 * time.Millisecond,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.config = config
	return nil
}

// LoadFromJSON loads configuration from JSON data.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.config = config
	return nil
}

// LoadFromEnv loads configuration from environment variables, after
// loading the given .env files (variables already set win).
// Environment variables follow the pattern: XTC_CONNECTOR_<SECTION>_<KEY>
// Examples:
//   - XTC_CONNECTOR_DATABASE_TYPE=oracle
//   - XTC_CONNECTOR_DATABASE_HOST=localhost
//   - XTC_CONNECTOR_MAPPING_FILES=product.yaml,category.yaml
//   - XTC_CONNECTOR_LINKS_KVSTORE_ENDPOINTS=localhost:6379,localhost:6380
//   - XTC_CONNECTOR_JOURNAL_QUEUE_TYPE=kafka
func (cm *ConfigManager) LoadFromEnv(envFiles ...string) error {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
	}

	config := DefaultConfig()

	// Database configuration
	envString("DATABASE_TYPE", &config.Database.Type)
	envString("DATABASE_HOST", &config.Database.Host)
	envInt("DATABASE_PORT", &config.Database.Port)
	envString("DATABASE_DATABASE", &config.Database.Database)
	envString("DATABASE_USERNAME", &config.Database.Username)
	envString("DATABASE_PASSWORD", &config.Database.Password)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Database.MaxIdleConns)
	envDuration("DATABASE_CONNECTION_TIMEOUT", &config.Database.ConnectionTimeout)

	// Mapping configuration
	envList("MAPPING_FILES", &config.Mapping.Files)
	envBool("MAPPING_TRANSACTIONAL_PUSH", &config.Mapping.TransactionalPush)
	envBool("MAPPING_VERIFY_COLUMNS", &config.Mapping.VerifyColumns)

	// Link store configuration
	envBool("LINKS_ENABLED", &config.Links.Enabled)
	envString("LINKS_PREFIX", &config.Links.Prefix)
	envDuration("LINKS_TTL", &config.Links.TTL)
	envString("LINKS_KVSTORE_TYPE", &config.Links.KVStore.Type)
	envList("LINKS_KVSTORE_ENDPOINTS", &config.Links.KVStore.RedisConfig.Endpoints)
	envBool("LINKS_KVSTORE_CLUSTER_MODE", &config.Links.KVStore.RedisConfig.ClusterMode)
	envString("LINKS_KVSTORE_PASSWORD", &config.Links.KVStore.RedisConfig.Password)
	envInt("LINKS_KVSTORE_DB", &config.Links.KVStore.RedisConfig.DB)
	envInt("LINKS_KVSTORE_POOL_SIZE", &config.Links.KVStore.RedisConfig.PoolSize)
	envInt("LINKS_KVSTORE_MAX_RETRIES", &config.Links.KVStore.MaxRetries)
	envString("LINKS_KVSTORE_DYNAMODB_REGION", &config.Links.KVStore.DynamoDBConfig.Region)
	envString("LINKS_KVSTORE_DYNAMODB_TABLE_NAME", &config.Links.KVStore.DynamoDBConfig.TableName)
	envString("LINKS_KVSTORE_DYNAMODB_ENDPOINT", &config.Links.KVStore.DynamoDBConfig.Endpoint)

	// Journal configuration
	envBool("JOURNAL_ENABLED", &config.Journal.Enabled)
	envString("JOURNAL_QUEUE_TYPE", &config.Journal.QueueType)
	envInt("JOURNAL_QUEUE_BUFFER_SIZE", &config.Journal.QueueBufferSize)
	envString("JOURNAL_REDIS_PREFIX", &config.Journal.RedisPrefix)
	envList("JOURNAL_REDIS_ENDPOINTS", &config.Journal.Redis.Endpoints)
	envInt("JOURNAL_BATCH_SIZE", &config.Journal.BatchSize)
	envInt("JOURNAL_DRAIN_RATE", &config.Journal.DrainRate)
	envDuration("JOURNAL_POLL_INTERVAL", &config.Journal.PollInterval)
	envInt("JOURNAL_MAX_RETRIES", &config.Journal.MaxRetries)
	envList("JOURNAL_KAFKA_BROKERS", &config.Journal.KafkaConfig.Brokers)
	envString("JOURNAL_KAFKA_TOPIC", &config.Journal.KafkaConfig.Topic)
	envString("JOURNAL_KAFKA_GROUP_ID", &config.Journal.KafkaConfig.GroupID)

	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.config = config
	return nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envList(key string, dst *[]string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = strings.Split(val, ",")
	}
}

// GetConfig returns the current configuration.
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// ValidateConfig validates a configuration built in code.
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	return cm.validateConfig(config)
}

// validateConfig validates the configuration and returns an error if invalid.
// KV store sections are validated by the strategy registered for their type.
func (cm *ConfigManager) validateConfig(config *Config) error {
	// Validate Database configuration
	if config.Database.Type == "" {
		return fmt.Errorf("database.type is required")
	}
	if config.Database.Type != "mysql" && config.Database.Type != "oracle" {
		return fmt.Errorf("database.type must be 'mysql' or 'oracle'")
	}
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Database.Port <= 0 || config.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database.username is required")
	}
	if config.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be greater than 0")
	}

	// Validate link store configuration using the Strategy pattern
	if config.Links.Enabled {
		if config.Links.Prefix == "" {
			return fmt.Errorf("links.prefix is required")
		}
		if config.Links.TTL < 0 {
			return fmt.Errorf("links.ttl must be non-negative")
		}
		if config.Links.KVStore.Type == "" {
			return fmt.Errorf("links.kvstore.type is required")
		}
		validator, exists := GetValidator(config.Links.KVStore.Type)
		if !exists {
			return fmt.Errorf("unsupported KV store type: %s", config.Links.KVStore.Type)
		}
		if err := validator.Validate(&config.Links.KVStore); err != nil {
			return fmt.Errorf("kvstore validation failed: %w", err)
		}
	}

	// Validate journal configuration
	if config.Journal.Enabled {
		if config.Journal.BatchSize <= 0 {
			return fmt.Errorf("journal.batch_size must be greater than 0")
		}
		if config.Journal.DrainRate <= 0 {
			return fmt.Errorf("journal.drain_rate must be greater than 0")
		}
		if config.Journal.MaxRetries < 0 {
			return fmt.Errorf("journal.max_retries must be non-negative")
		}
		switch config.Journal.QueueType {
		case "memory":
			if config.Journal.QueueBufferSize <= 0 {
				return fmt.Errorf("journal.queue_buffer_size must be greater than 0")
			}
		case "redis":
			if len(config.Journal.Redis.Endpoints) == 0 {
				return fmt.Errorf("journal.redis.endpoints is required when queue_type is 'redis'")
			}
			if config.Journal.RedisPrefix == "" {
				return fmt.Errorf("journal.redis_prefix is required when queue_type is 'redis'")
			}
		case "kafka":
			if len(config.Journal.KafkaConfig.Brokers) == 0 {
				return fmt.Errorf("kafka_config.brokers is required when queue_type is 'kafka'")
			}
			if config.Journal.KafkaConfig.Topic == "" {
				return fmt.Errorf("kafka_config.topic is required when queue_type is 'kafka'")
			}
		default:
			return fmt.Errorf("journal.queue_type must be 'memory', 'redis', or 'kafka'")
		}
	}

	return nil
}
