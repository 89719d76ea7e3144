package registry

import (
	"context"
	"reflect"
	"sync"

	"github.com/jtl-software/connector-components-xtc/internal/core"
)

// PersistHook observes rows written or deleted by a mapper.
// Hooks are called synchronously after the store accepted the statement.
type PersistHook interface {
	// OnPersist is called after a row was inserted or updated.
	// If this hook returns an error, the push fails.
	OnPersist(ctx context.Context, event core.PersistEvent) error

	// OnDelete is called after a row was deleted.
	// If this hook returns an error, the delete fails.
	OnDelete(ctx context.Context, event core.PersistEvent) error
}

// PersistHookFunc lets plain functions be used as hooks without
// implementing the interface. Nil functions are skipped.
type PersistHookFunc struct {
	OnPersistFunc func(ctx context.Context, event core.PersistEvent) error
	OnDeleteFunc  func(ctx context.Context, event core.PersistEvent) error
}

// OnPersist calls the OnPersistFunc if it's not nil.
func (f PersistHookFunc) OnPersist(ctx context.Context, event core.PersistEvent) error {
	if f.OnPersistFunc != nil {
		return f.OnPersistFunc(ctx, event)
	}
	return nil
}

// OnDelete calls the OnDeleteFunc if it's not nil.
func (f PersistHookFunc) OnDelete(ctx context.Context, event core.PersistEvent) error {
	if f.OnDeleteFunc != nil {
		return f.OnDeleteFunc(ctx, event)
	}
	return nil
}

// LifecycleManager manages persist hooks shared by every mapper of an engine.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []PersistHook
}

// NewLifecycleManager creates a new lifecycle manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		hooks: make([]PersistHook, 0),
	}
}

// RegisterHook registers a hook. Hooks are executed in the order they were
// registered.
func (lm *LifecycleManager) RegisterHook(hook PersistHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// UnregisterHook removes a hook from the manager. Hooks whose dynamic type
// is not comparable (such as PersistHookFunc values) cannot be removed
// individually; use ClearHooks.
func (lm *LifecycleManager) UnregisterHook(hook PersistHook) {
	if hook == nil || !reflect.TypeOf(hook).Comparable() {
		return
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for i, h := range lm.hooks {
		if reflect.TypeOf(h) == reflect.TypeOf(hook) && h == hook {
			lm.hooks = append(lm.hooks[:i], lm.hooks[i+1:]...)
			return
		}
	}
}

// ExecutePersistHooks executes all OnPersist hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (lm *LifecycleManager) ExecutePersistHooks(ctx context.Context, event core.PersistEvent) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnPersist(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteDeleteHooks executes all OnDelete hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (lm *LifecycleManager) ExecuteDeleteHooks(ctx context.Context, event core.PersistEvent) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnDelete(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (lm *LifecycleManager) snapshot() []PersistHook {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	hooks := make([]PersistHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	return hooks
}

// ClearHooks removes all registered hooks.
func (lm *LifecycleManager) ClearHooks() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = make([]PersistHook, 0)
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
