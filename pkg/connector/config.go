// Package connector is the public entry point of the connector components.
// A Client loads mapping files, binds them to model definitions and hands
// out Controllers that pull, push, delete and count entities of the shop
// database.
//
// Typical usage:
//
//	cfg, _ := connector.LoadConfig("connector.yaml")
//	client, _ := connector.NewClient(cfg, definitions)
//	defer client.Close()
//
//	products, _ := client.Controller("Product")
//	action := products.Pull(ctx, connector.QueryFilter{Limit: 100})
package connector

import (
	"fmt"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/journal"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Configuration types.
type (
	Config         = registry.Config
	DatabaseConfig = registry.DatabaseConfig
	MappingConfig  = registry.MappingConfig
	LinksConfig    = registry.LinksConfig
	KVStoreConfig  = registry.KVStoreConfig
	RedisConfig    = registry.RedisConfig
	DynamoDBConfig = registry.DynamoDBConfig
	JournalConfig  = registry.JournalConfig
	KafkaConfig    = registry.KafkaConfig
)

// Model definition types.
type (
	Definition   = registry.Definition
	Computations = registry.Computations
	PullFunc     = registry.PullFunc
	PushFunc     = registry.PushFunc
	AddDataFunc  = registry.AddDataFunc
	PushDoneFunc = registry.PushDoneFunc
)

// Types seen by computations and hooks.
type (
	Identity        = identity.Identity
	Row             = row.Row
	Value           = row.Value
	PersistEvent    = core.PersistEvent
	PersistHook     = registry.PersistHook
	PersistHookFunc = registry.PersistHookFunc
	WriteOperation  = core.WriteOperation
	JournalHandler  = journal.Handler
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return registry.DefaultConfig()
}

// LoadConfig reads and validates a YAML or JSON configuration file.
func LoadConfig(path string) (*Config, error) {
	cm := registry.NewConfigManager()
	if err := cm.LoadFromFile(path); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}

// LoadConfigFromEnv builds the configuration from XTC_CONNECTOR_* variables
// after loading the given .env files.
func LoadConfigFromEnv(envFiles ...string) (*Config, error) {
	cm := registry.NewConfigManager()
	if err := cm.LoadFromEnv(envFiles...); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}

// ValidateConfig checks cfg the way LoadConfig does.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return registry.NewConfigManager().ValidateConfig(cfg)
}
