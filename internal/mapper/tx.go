package mapper

import "context"

// dispatcher collects side effects of a transactional push until the
// transaction committed. Its presence in a context marks the push as
// already running inside that transaction.
type dispatcher struct {
	effects []func(context.Context) error
}

type dispatcherKey struct{}

func withDispatcher(ctx context.Context, d *dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

func dispatcherFrom(ctx context.Context) *dispatcher {
	d, _ := ctx.Value(dispatcherKey{}).(*dispatcher)
	return d
}

// run executes effect now, or queues it when ctx carries a dispatcher.
func run(ctx context.Context, effect func(context.Context) error) error {
	if d := dispatcherFrom(ctx); d != nil {
		d.effects = append(d.effects, effect)
		return nil
	}
	return effect(ctx)
}

// flush runs the queued effects in order and stops at the first error.
func (d *dispatcher) flush(ctx context.Context) error {
	for _, effect := range d.effects {
		if err := effect(ctx); err != nil {
			return err
		}
	}
	return nil
}
