package registry

import (
	"time"
)

// Config is the runtime configuration of a connector. pkg/connector
// re-exports it so callers never import this package.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Mapping  MappingConfig  `yaml:"mapping" json:"mapping"`
	Links    LinksConfig    `yaml:"links" json:"links"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
}

// DatabaseConfig contains configuration for the shop database.
type DatabaseConfig struct {
	// Type is "mysql" or "oracle".
	Type string `yaml:"type" json:"type"`
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Database is the schema name (MySQL) or service name (Oracle).
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	MaxOpenConns      int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns      int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// MappingConfig controls how mapping files are loaded and pushed.
type MappingConfig struct {
	// Files are YAML mapping documents merged into one set.
	Files []string `yaml:"files" json:"files"`

	// TransactionalPush wraps every top-level push in one transaction.
	TransactionalPush bool `yaml:"transactional_push" json:"transactional_push"`

	// VerifyColumns checks mapped columns against the live schema at startup.
	VerifyColumns bool `yaml:"verify_columns" json:"verify_columns"`
}

// LinksConfig controls the host/endpoint identity link store.
type LinksConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Prefix  string        `yaml:"prefix" json:"prefix"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	KVStore KVStoreConfig `yaml:"kvstore" json:"kvstore"`
}

// KVStoreConfig contains configuration for the key-value store backing
// identity links. Backends register themselves by type.
type KVStoreConfig struct {
	Type           string         `yaml:"type" json:"type"`
	RedisConfig    RedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig DynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`
	MaxRetries     int            `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout    time.Duration  `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration  `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration  `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	ClusterMode  bool     `yaml:"cluster_mode" json:"cluster_mode"`
	Password     string   `yaml:"password" json:"password"`
	DB           int      `yaml:"db" json:"db"`
	PoolSize     int      `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int      `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DynamoDBConfig contains DynamoDB-specific configuration.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// JournalConfig contains configuration of the write journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// QueueType is "memory", "redis" or "kafka".
	QueueType       string `yaml:"queue_type" json:"queue_type"`
	QueueBufferSize int    `yaml:"queue_buffer_size" json:"queue_buffer_size"`

	// RedisPrefix namespaces the Redis lists of the redis queue.
	RedisPrefix string      `yaml:"redis_prefix" json:"redis_prefix"`
	Redis       RedisConfig `yaml:"redis" json:"redis"`

	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	DrainRate    int           `yaml:"drain_rate" json:"drain_rate"` // Operations per second handed to the relay handler
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`

	KafkaConfig KafkaConfig `yaml:"kafka_config" json:"kafka_config"`
}

// KafkaConfig contains Kafka-specific configuration.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}
