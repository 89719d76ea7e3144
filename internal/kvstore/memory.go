package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKVStore keeps keys in process memory. Links stored in it do not
// survive a restart; it suits single-process connectors and tests.
type MemoryKVStore struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	now    func() time.Time
	closed bool
}

// NewMemoryKVStore creates an empty store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (m *MemoryKVStore) live(key string) ([]byte, bool) {
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Get retrieves a copy of the value stored under key.
func (m *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("KV store is closed")
	}
	v, ok := m.live(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value. A ttl of 0 never expires.
func (m *MemoryKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("KV store is closed")
	}
	m.set(key, value, ttl)
	return nil
}

func (m *MemoryKVStore) set(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = e
}

// Delete removes a key. Missing keys are not an error.
func (m *MemoryKVStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("KV store is closed")
	}
	delete(m.items, key)
	return nil
}

// Exists checks if a live key exists.
func (m *MemoryKVStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("KV store is closed")
	}
	_, ok := m.live(key)
	return ok, nil
}

// BatchSet stores all items under one lock.
func (m *MemoryKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("KV store is closed")
	}
	for key, value := range items {
		m.set(key, value, ttl)
	}
	return nil
}

// Len returns the number of live keys.
func (m *MemoryKVStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for key := range m.items {
		if _, ok := m.live(key); ok {
			n++
		}
	}
	return n
}

// Close drops every key.
func (m *MemoryKVStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = make(map[string]memoryEntry)
	return nil
}

// MemoryKVStoreFactory creates in-process KV stores.
type MemoryKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *MemoryKVStoreFactory) Type() string {
	return "memory"
}

// Create returns a new empty store.
func (f *MemoryKVStoreFactory) Create(config registry.KVStoreConfig) (core.KVStore, error) {
	return NewMemoryKVStore(), nil
}

// MemoryConfigValidator accepts any memory configuration.
type MemoryConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *MemoryConfigValidator) Type() string {
	return "memory"
}

// Validate checks the type only; the memory store has no settings.
func (v *MemoryConfigValidator) Validate(config *registry.KVStoreConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Type != "memory" {
		return fmt.Errorf("invalid type for memory validator: %s", config.Type)
	}
	return nil
}

func init() {
	RegisterFactory(&MemoryKVStoreFactory{})
	registry.RegisterValidator(&MemoryConfigValidator{})
}
