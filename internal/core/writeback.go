package core

import (
	"context"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// OperationType represents the kind of write the engine performed.
type OperationType string

const (
	// OperationCreate is a delete-insert or insert of a new row.
	OperationCreate OperationType = "CREATE"

	// OperationUpdate is an update keyed by an existing host identifier.
	OperationUpdate OperationType = "UPDATE"

	// OperationDelete is a delete by the uniqueness predicate.
	OperationDelete OperationType = "DELETE"
)

// PersistEvent describes one row written or deleted by a mapper.
type PersistEvent struct {
	// Entity is the mapper name.
	Entity string

	// Table is the target table.
	Table string

	Operation OperationType

	// Identity is the identity written back onto the model. Empty for
	// mappers without an identity accessor.
	Identity identity.Identity

	// Row holds the columns that were written (or the delete predicate).
	Row *row.Row
}

// WriteOperation is one journal entry recorded for a PersistEvent.
type WriteOperation struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	Entity    string        `json:"entity"`
	Table     string        `json:"table"`
	Operation OperationType `json:"operation"`

	// Key is the host identifier of the row, if known.
	Key string `json:"key,omitempty"`

	// Endpoint is the peer identifier of the row, if known.
	Endpoint string `json:"endpoint,omitempty"`

	// Data holds the written columns as text, null columns as nil.
	Data map[string]any `json:"data,omitempty"`

	// Checksum fingerprints Data in column order.
	Checksum string `json:"checksum"`

	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// WriteBackQueue stores journal entries until a relay hands them on.
type WriteBackQueue interface {
	// Enqueue adds a write operation to the queue.
	Enqueue(ctx context.Context, operation *WriteOperation) error

	// Dequeue retrieves up to batchSize operations in FIFO order.
	// Returns an empty slice if no operations are available.
	Dequeue(ctx context.Context, batchSize int) ([]*WriteOperation, error)

	// Size returns the current number of operations in the queue.
	Size() int

	// Close closes the queue and releases resources.
	Close() error
}
