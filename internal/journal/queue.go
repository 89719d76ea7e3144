// Package journal records every row the mapping engine writes or deletes
// and relays the records to a handler at a bounded rate. Records travel
// through a core.WriteBackQueue backed by process memory, Redis lists or
// a Kafka topic.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/kvstore"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

var (
	// ErrQueueClosed is returned when trying to use a closed queue.
	ErrQueueClosed = errors.New("journal queue is closed")

	// ErrQueueFull is returned by bounded queues that cannot take more entries.
	ErrQueueFull = errors.New("journal queue is full")

	// ErrInvalidOperation is returned when an invalid operation is provided.
	ErrInvalidOperation = errors.New("invalid write operation")

	// ErrRedisOperationsNotSupported is returned when the KVStore doesn't support Redis list operations.
	ErrRedisOperationsNotSupported = errors.New("KVStore does not support Redis list operations")
)

const defaultBatchSize = 100

// RedisQueueOperations is implemented by KV stores that expose Redis list
// commands. The redis queue needs it; plain KV stores cannot order entries.
type RedisQueueOperations interface {
	// ListPush adds a value to the end of a list (RPUSH).
	ListPush(ctx context.Context, key string, value []byte) error

	// ListPop removes and returns the first element from a list (LPOP).
	// Returns nil if the list is empty.
	ListPop(ctx context.Context, key string) ([]byte, error)

	// ListLength returns the length of a list (LLEN).
	ListLength(ctx context.Context, key string) (int64, error)
}

// validate checks the fields every queue relies on and stamps the
// operation time.
func validate(operation *core.WriteOperation) error {
	if operation == nil {
		return ErrInvalidOperation
	}
	if operation.Entity == "" {
		return fmt.Errorf("%w: entity is required", ErrInvalidOperation)
	}
	if operation.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidOperation)
	}
	if operation.Timestamp.IsZero() {
		operation.Timestamp = time.Now().UTC()
	}
	return nil
}

// RedisQueue implements WriteBackQueue using a Redis list. Operations are
// JSON encoded, pushed with RPUSH and popped with LPOP.
type RedisQueue struct {
	ops    RedisQueueOperations
	key    string
	closed bool
}

// NewRedisQueue creates a queue on kvStore, which must implement
// RedisQueueOperations. prefix namespaces the list key.
func NewRedisQueue(kvStore core.KVStore, prefix string) (*RedisQueue, error) {
	ops, ok := kvStore.(RedisQueueOperations)
	if !ok {
		return nil, ErrRedisOperationsNotSupported
	}
	if prefix == "" {
		prefix = "xtc:journal"
	}
	return &RedisQueue{ops: ops, key: prefix + ":queue"}, nil
}

// Key returns the Redis list key holding the queue.
func (q *RedisQueue) Key() string {
	return q.key
}

// Enqueue adds a write operation to the end of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, operation *core.WriteOperation) error {
	if q.closed {
		return ErrQueueClosed
	}
	if err := validate(operation); err != nil {
		return err
	}

	data, err := json.Marshal(operation)
	if err != nil {
		return fmt.Errorf("failed to marshal write operation: %w", err)
	}
	if err := q.ops.ListPush(ctx, q.key, data); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// Dequeue pops up to batchSize operations. Entries that do not decode are
// dropped with a warning.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.WriteOperation, error) {
	if q.closed {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	operations := make([]*core.WriteOperation, 0, batchSize)
	for len(operations) < batchSize {
		data, err := q.ops.ListPop(ctx, q.key)
		if err != nil {
			if len(operations) == 0 {
				return nil, fmt.Errorf("failed to dequeue operation: %w", err)
			}
			log.Printf("[REDIS] WARNING: Dequeue stopped after %d operations: %v", len(operations), err)
			break
		}
		if data == nil {
			break
		}

		var op core.WriteOperation
		if err := json.Unmarshal(data, &op); err != nil {
			log.Printf("[REDIS] WARNING: Dropping undecodable journal entry: %v", err)
			continue
		}
		operations = append(operations, &op)
	}
	return operations, nil
}

// Size returns the current length of the list, 0 when it cannot be read.
func (q *RedisQueue) Size() int {
	if q.closed {
		return 0
	}
	length, err := q.ops.ListLength(context.Background(), q.key)
	if err != nil {
		return 0
	}
	return int(length)
}

// Close closes the queue. The underlying KV store stays open.
func (q *RedisQueue) Close() error {
	q.closed = true
	return nil
}

// NewQueue creates the queue selected by cfg.QueueType.
func NewQueue(cfg registry.JournalConfig) (core.WriteBackQueue, error) {
	switch cfg.QueueType {
	case "", "memory":
		return NewMemoryQueue(cfg.QueueBufferSize), nil
	case "redis":
		store, err := kvstore.NewRedisKVStore(cfg.Redis, 3, 5*time.Second, 3*time.Second, 3*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal redis store: %w", err)
		}
		queue, err := NewRedisQueue(store, cfg.RedisPrefix)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return &ownedRedisQueue{RedisQueue: queue, store: store}, nil
	case "kafka":
		k := cfg.KafkaConfig
		queue, err := NewKafkaQueue(KafkaQueueConfig{
			Brokers:         k.Brokers,
			Topic:           k.Topic,
			GroupID:         k.GroupID,
			BatchSize:       k.BatchSize,
			BatchTimeout:    k.BatchTimeout,
			WriteTimeout:    k.WriteTimeout,
			ReadTimeout:     k.ReadTimeout,
			RequiredAcks:    k.RequiredAcks,
			MaxMessageBytes: k.MaxMessageBytes,
			MinBytes:        k.MinBytes,
			MaxBytes:        k.MaxBytes,
			MaxWait:         k.MaxWait,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("unsupported journal queue type: %s", cfg.QueueType)
	}
}

// ownedRedisQueue closes the Redis connection it was created with.
type ownedRedisQueue struct {
	*RedisQueue
	store *kvstore.RedisKVStore
}

func (q *ownedRedisQueue) Close() error {
	_ = q.RedisQueue.Close()
	return q.store.Close()
}
