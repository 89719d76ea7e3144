package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jtl-software/connector-components-xtc/internal/core"
)

// KafkaQueueConfig holds configuration for Kafka queue.
type KafkaQueueConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	RequiredAcks    int // 0, 1, or -1 (all)
	MaxMessageBytes int
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue implements WriteBackQueue on a Kafka topic. Messages are keyed
// by entity so the records of one entity stay in one partition.
type KafkaQueue struct {
	writer      messageWriter
	reader      messageReader
	topic       string
	groupID     string
	readTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	size   int // produced minus consumed by this process
}

// NewKafkaQueue creates a producer and a consumer group reader for the
// configured topic. No connection is made until the first write or read.
func NewKafkaQueue(config KafkaQueueConfig) (*KafkaQueue, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}
	if config.GroupID == "" {
		config.GroupID = "xtc-connector-journal"
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 10 * 1024 * 1024
	}
	if config.MinBytes <= 0 || config.MinBytes > config.MaxBytes {
		config.MinBytes = 1
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		BatchBytes:   int64(config.MaxMessageBytes),
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  3,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		MaxWait:     config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	log.Printf("[KAFKA] Journal queue on topic %s (brokers %v, group %s)", config.Topic, config.Brokers, config.GroupID)
	return newKafkaQueue(writer, reader, config.Topic, config.GroupID, config.ReadTimeout), nil
}

func newKafkaQueue(w messageWriter, r messageReader, topic, groupID string, readTimeout time.Duration) *KafkaQueue {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &KafkaQueue{
		writer:      w,
		reader:      r,
		topic:       topic,
		groupID:     groupID,
		readTimeout: readTimeout,
	}
}

func (q *KafkaQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue produces one message for the operation.
func (q *KafkaQueue) Enqueue(ctx context.Context, operation *core.WriteOperation) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := validate(operation); err != nil {
		return err
	}

	data, err := json.Marshal(operation)
	if err != nil {
		return fmt.Errorf("failed to marshal write operation: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(operation.Entity),
		Value: data,
		Time:  operation.Timestamp,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(operation.Operation)},
			{Key: "table", Value: []byte(operation.Table)},
		},
	}

	start := time.Now()
	if err := q.writer.WriteMessages(ctx, message); err != nil {
		log.Printf("[KAFKA] ERROR: Failed to write %s %s to topic %s: %v (duration: %v)",
			operation.Operation, operation.Entity, q.topic, err, time.Since(start))
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	q.mu.Lock()
	q.size++
	q.mu.Unlock()
	return nil
}

// Dequeue consumes up to batchSize messages. It stops at the first read
// that finds no message within the read timeout. Offsets are committed as
// soon as a message is decoded; the relay re-enqueues what it cannot handle.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.WriteOperation, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	operations := make([]*core.WriteOperation, 0, batchSize)
	for len(operations) < batchSize {
		readCtx, cancel := context.WithTimeout(ctx, q.readTimeout)
		message, err := q.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			if len(operations) == 0 {
				return nil, fmt.Errorf("failed to read message from Kafka: %w", err)
			}
			log.Printf("[KAFKA] ERROR: Failed to read message from topic %s: %v", q.topic, err)
			break
		}

		var op core.WriteOperation
		if err := json.Unmarshal(message.Value, &op); err != nil {
			log.Printf("[KAFKA] WARNING: Skipping undecodable message (partition %d, offset %d): %v",
				message.Partition, message.Offset, err)
		} else {
			operations = append(operations, &op)
		}

		if err := q.reader.CommitMessages(ctx, message); err != nil {
			log.Printf("[KAFKA] WARNING: Failed to commit offset (partition %d, offset %d): %v",
				message.Partition, message.Offset, err)
		}
	}

	if len(operations) > 0 {
		q.mu.Lock()
		q.size = max(q.size-len(operations), 0)
		q.mu.Unlock()
	}
	return operations, nil
}

// Size returns an approximate number of operations in the queue. Kafka
// does not expose a queue length; the count covers this process only.
func (q *KafkaQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the Kafka queue and releases resources.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	if err := q.writer.Close(); err != nil {
		log.Printf("[KAFKA] ERROR: Failed to close writer: %v", err)
	}
	if err := q.reader.Close(); err != nil {
		log.Printf("[KAFKA] ERROR: Failed to close reader: %v", err)
		return err
	}
	return nil
}
