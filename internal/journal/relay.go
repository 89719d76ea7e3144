package journal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jtl-software/connector-components-xtc/internal/core"
)

// Handler receives journal entries drained by a Relay.
type Handler interface {
	Handle(ctx context.Context, operation *core.WriteOperation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, operation *core.WriteOperation) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, operation *core.WriteOperation) error {
	return f(ctx, operation)
}

// RelayConfig contains configuration for the relay.
type RelayConfig struct {
	// DrainRate is the maximum number of operations handed to the handler
	// per second.
	DrainRate int

	// BatchSize is how many operations to dequeue at once.
	BatchSize int

	// PollInterval is how long to wait before polling an empty queue again.
	PollInterval time.Duration

	// MaxRetries is how often a failed operation is re-enqueued before it
	// is dropped.
	MaxRetries int
}

// DefaultRelayConfig returns the defaults used for unset fields.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DrainRate:    50,
		BatchSize:    1,
		PollInterval: 100 * time.Millisecond,
		MaxRetries:   3,
	}
}

// RelayStats counts what a relay did since it was created.
type RelayStats struct {
	Handled int
	Retried int
	Dropped int
}

// Relay drains a journal queue into a handler at a controlled rate.
type Relay struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   RelayStats

	queue   core.WriteBackQueue
	handler Handler
	config  RelayConfig
	limiter *rate.Limiter
}

// NewRelay creates a relay. Zero config fields take their defaults; a
// negative MaxRetries drops failed operations right away.
func NewRelay(queue core.WriteBackQueue, handler Handler, config RelayConfig) *Relay {
	defaults := DefaultRelayConfig()
	if config.DrainRate <= 0 {
		config.DrainRate = defaults.DrainRate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	return &Relay{
		queue:   queue,
		handler: handler,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.DrainRate), 1),
	}
}

// Config returns the effective relay configuration.
func (r *Relay) Config() RelayConfig {
	return r.config
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() RelayStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// QueueSize returns the current size of the drained queue.
func (r *Relay) QueueSize() int {
	if r.queue == nil {
		return 0
	}
	return r.queue.Size()
}

// IsRunning returns whether the background loop is running.
func (r *Relay) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Start runs the relay loop in its own goroutine until Stop is called or
// ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, r.stopCh, r.doneCh)
	log.Printf("[RELAY] Started with drain rate: %d ops/sec", r.config.DrainRate)
	return nil
}

// Stop stops the loop and waits for the operation in flight.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Printf("[RELAY] Stopped")
	return nil
}

func (r *Relay) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	// Stop cancels the context so a blocked limiter or dequeue returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		n, err := r.Drain(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[RELAY] ERROR: Drain failed: %v", err)
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.config.PollInterval):
		}
	}
}

// Drain dequeues one batch and hands every operation to the handler,
// waiting on the rate limiter before each. It returns how many operations
// were dequeued.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	operations, err := r.queue.Dequeue(ctx, r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for i, op := range operations {
		if op == nil {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			// Put back what was dequeued but not handled.
			for _, rest := range operations[i:] {
				if rest != nil {
					r.requeue(ctx, rest)
				}
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return len(operations), nil
			}
			return len(operations), err
		}
		r.handle(ctx, op)
	}
	return len(operations), nil
}

func (r *Relay) handle(ctx context.Context, op *core.WriteOperation) {
	start := time.Now()
	if err := r.handler.Handle(ctx, op); err != nil {
		log.Printf("[RELAY] ERROR: Failed to handle %s %s (key %s, attempt %d): %v (duration: %v)",
			op.Operation, op.Entity, op.Key, op.RetryCount+1, err, time.Since(start))
		op.RetryCount++
		if op.RetryCount > r.config.MaxRetries {
			log.Printf("[RELAY] ERROR: Dropping %s %s (id %s) after %d attempts", op.Operation, op.Entity, op.ID, op.RetryCount)
			r.count(func(s *RelayStats) { s.Dropped++ })
			return
		}
		r.requeue(ctx, op)
		r.count(func(s *RelayStats) { s.Retried++ })
		return
	}
	r.count(func(s *RelayStats) { s.Handled++ })
}

func (r *Relay) requeue(ctx context.Context, op *core.WriteOperation) {
	if err := r.queue.Enqueue(context.WithoutCancel(ctx), op); err != nil {
		log.Printf("[RELAY] ERROR: Failed to re-enqueue %s %s (id %s): %v", op.Operation, op.Entity, op.ID, err)
		r.count(func(s *RelayStats) { s.Dropped++ })
	}
}

func (r *Relay) count(fn func(*RelayStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
