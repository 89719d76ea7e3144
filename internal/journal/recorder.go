package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Recorder is a persist hook that enqueues one journal entry per row a
// mapper wrote or deleted. A failing enqueue fails the push.
type Recorder struct {
	queue core.WriteBackQueue
	now   func() time.Time
}

var _ registry.PersistHook = (*Recorder)(nil)

// NewRecorder creates a recorder writing to queue.
func NewRecorder(queue core.WriteBackQueue) *Recorder {
	return &Recorder{queue: queue, now: time.Now}
}

// OnPersist records an inserted or updated row.
func (r *Recorder) OnPersist(ctx context.Context, event core.PersistEvent) error {
	return r.record(ctx, event)
}

// OnDelete records a deleted row; Data holds the delete predicate.
func (r *Recorder) OnDelete(ctx context.Context, event core.PersistEvent) error {
	return r.record(ctx, event)
}

func (r *Recorder) record(ctx context.Context, event core.PersistEvent) error {
	op := NewOperation(event, r.now())
	if err := r.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("failed to journal %s %s: %w", op.Operation, op.Entity, err)
	}
	return nil
}

// NewOperation builds the journal entry for event.
func NewOperation(event core.PersistEvent, at time.Time) *core.WriteOperation {
	return &core.WriteOperation{
		ID:        uuid.NewString(),
		Entity:    event.Entity,
		Table:     event.Table,
		Operation: event.Operation,
		Key:       event.Identity.Host,
		Endpoint:  event.Identity.Endpoint,
		Data:      data(event.Row),
		Checksum:  Checksum(event.Row),
		Timestamp: at.UTC(),
	}
}

func data(r *row.Row) map[string]any {
	if r.Len() == 0 {
		return nil
	}
	m := make(map[string]any, r.Len())
	r.Each(func(col string, v row.Value) {
		if v.IsNull() {
			m[col] = nil
			return
		}
		m[col] = v.Text()
	})
	return m
}

// Checksum fingerprints r in column order. Null and the empty string hash
// differently.
func Checksum(r *row.Row) string {
	d := xxhash.New()
	r.Each(func(col string, v row.Value) {
		_, _ = d.WriteString(col)
		if v.IsNull() {
			_, _ = d.Write([]byte{0x00})
		} else {
			_, _ = d.Write([]byte{0x01})
			_, _ = d.WriteString(v.Text())
		}
		_, _ = d.Write([]byte{0x1e})
	})
	return fmt.Sprintf("%016x", d.Sum64())
}
