package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/database"
	"github.com/jtl-software/connector-components-xtc/internal/journal"
	"github.com/jtl-software/connector-components-xtc/internal/kvstore"
	"github.com/jtl-software/connector-components-xtc/internal/linker"
	"github.com/jtl-software/connector-components-xtc/internal/mapper"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/persistence"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

// ErrClientClosed is returned by a closed client.
var ErrClientClosed = errors.New("connector client is closed")

type options struct {
	store    core.Store
	kvStore  core.KVStore
	queue    core.WriteBackQueue
	handler  journal.Handler
	hooks    []registry.PersistHook
	mappings [][]byte
}

// Option configures a Client.
type Option func(*options)

// WithStore uses store instead of opening the configured database. Column
// verification is skipped.
func WithStore(store core.Store) Option {
	return func(o *options) { o.store = store }
}

// WithKVStore stores identity links in kv instead of the configured
// backend. The client does not close it.
func WithKVStore(kv core.KVStore) Option {
	return func(o *options) { o.kvStore = kv }
}

// WithQueue journals into queue instead of the configured one. The client
// does not close it.
func WithQueue(queue core.WriteBackQueue) Option {
	return func(o *options) { o.queue = queue }
}

// WithJournalHandler creates a relay handing journal entries to handler.
// Without it the journal is only recorded.
func WithJournalHandler(handler JournalHandler) Option {
	return func(o *options) { o.handler = handler }
}

// WithHook registers a persist hook for every mapper.
func WithHook(hook PersistHook) Option {
	return func(o *options) { o.hooks = append(o.hooks, hook) }
}

// WithMappings adds an inline YAML mapping document to the configured
// mapping files.
func WithMappings(yamlDoc []byte) Option {
	return func(o *options) { o.mappings = append(o.mappings, yamlDoc) }
}

// Client binds mapping configurations to model definitions and the shop
// database.
type Client struct {
	mu     sync.RWMutex
	closed bool

	config   *Config
	registry *registry.Registry
	engine   *mapper.Engine
	linker   *linker.Linker
	relay    *journal.Relay

	// closers release what the client opened itself, in reverse order.
	closers []func() error
}

// NewClient creates a client for the given model definitions. Mapping files
// named in cfg.Mapping.Files are loaded and validated before any database
// work happens.
func NewClient(cfg *Config, defs []*Definition, opts ...Option) (client *Client, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{config: cfg}
	defer func() {
		if err != nil {
			_ = c.release()
		}
	}()

	reg := registry.NewRegistry(nil)
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if err := loadMappings(reg, cfg.Mapping.Files, o.mappings); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping configuration: %w", err)
	}
	c.registry = reg

	store := o.store
	if store == nil {
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)

		if cfg.Mapping.VerifyColumns {
			timeout := cfg.Database.ConnectionTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := reg.Verify(ctx, db)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("mapping does not match the database: %w", err)
			}
		}

		adapter, err := persistence.New(db)
		if err != nil {
			return nil, err
		}
		store = adapter
	}

	engineOpts := []mapper.Option{mapper.WithTransactionalPush(cfg.Mapping.TransactionalPush)}

	if cfg.Links.Enabled {
		kv := o.kvStore
		if kv == nil {
			kv, err = kvstore.Create(cfg.Links.KVStore)
			if err != nil {
				return nil, fmt.Errorf("failed to create link store: %w", err)
			}
			c.closers = append(c.closers, kv.Close)
		}
		c.linker = linker.New(kv, cfg.Links.Prefix, cfg.Links.TTL)
		engineOpts = append(engineOpts, mapper.WithLinker(c.linker))
	}

	lifecycle := reg.GetLifecycleManager()
	if cfg.Journal.Enabled {
		queue := o.queue
		if queue == nil {
			queue, err = journal.NewQueue(cfg.Journal)
			if err != nil {
				return nil, fmt.Errorf("failed to create journal queue: %w", err)
			}
			c.closers = append(c.closers, queue.Close)
		}
		lifecycle.RegisterHook(journal.NewRecorder(queue))

		if o.handler != nil {
			c.relay = journal.NewRelay(queue, o.handler, journal.RelayConfig{
				DrainRate:    cfg.Journal.DrainRate,
				BatchSize:    cfg.Journal.BatchSize,
				PollInterval: cfg.Journal.PollInterval,
				MaxRetries:   cfg.Journal.MaxRetries,
			})
			c.closers = append(c.closers, c.relay.Stop)
		}
	}
	for _, hook := range o.hooks {
		lifecycle.RegisterHook(hook)
	}

	c.engine = mapper.NewEngine(reg, store, engineOpts...)
	log.Printf("[CONNECTOR] Client ready with %d mappers (links: %t, journal: %t, transactional push: %t)",
		reg.Count(), cfg.Links.Enabled, cfg.Journal.Enabled, cfg.Mapping.TransactionalPush)
	return c, nil
}

func loadMappings(reg *registry.Registry, files []string, docs [][]byte) error {
	var sets []mapping.Set
	if len(files) > 0 {
		set, err := mapping.LoadFiles(files...)
		if err != nil {
			return err
		}
		sets = append(sets, set)
	}
	for _, doc := range docs {
		set, err := mapping.Parse(doc)
		if err != nil {
			return err
		}
		sets = append(sets, set)
	}
	for _, set := range sets {
		if err := reg.Load(set); err != nil {
			return err
		}
	}
	return nil
}

// Controller returns the controller for the mapper registered under name.
func (c *Client) Controller(name string) (*Controller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if !c.registry.Has(name) {
		return nil, fmt.Errorf("%w: %s", registry.ErrMapperNotFound, name)
	}
	return &Controller{name: name, client: c, tag: "[CONTROLLER:" + name + "]"}, nil
}

// Mappers returns the registered mapper names in sorted order.
func (c *Client) Mappers() []string {
	return c.registry.List()
}

// Config returns the configuration the client was created with.
func (c *Client) Config() *Config {
	return c.config
}

// Start starts the journal relay, if one was configured.
func (c *Client) Start(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.relay == nil {
		return nil
	}
	return c.relay.Start(ctx)
}

// Stop stops the journal relay.
func (c *Client) Stop() error {
	if c.relay == nil {
		return nil
	}
	return c.relay.Stop()
}

// IsRunning reports whether the journal relay is running.
func (c *Client) IsRunning() bool {
	return c.relay != nil && c.relay.IsRunning()
}

// JournalSize returns the number of journal entries not yet relayed.
func (c *Client) JournalSize() int {
	if c.relay == nil {
		return 0
	}
	return c.relay.QueueSize()
}

// Close stops the relay and releases the connections the client opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}

func (c *Client) release() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Client) mapper(name string) (*mapper.Mapper, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.engine.Mapper(name)
}
