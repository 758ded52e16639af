package progression

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/catalog"
	"golang.org/x/sync/singleflight"
)

// Registry hands out one Engine per user, loading it on first use. Engines are
// caches over the store: writes are version-checked, so several registries
// (one per API instance) may hold the same user.
type Registry struct {
	catalog *catalog.Catalog
	store   Store
	opts    Options
	logger  *slog.Logger

	mu      sync.RWMutex
	engines map[uuid.UUID]*Engine
	loads   singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(cat *catalog.Catalog, store Store, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		catalog: cat,
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		engines: make(map[uuid.UUID]*Engine),
	}
}

// Catalog returns the rule catalog shared by every engine.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}

// Engine returns the user's engine, loading it from the store on first use.
// A freshly loaded engine records a login, which is how the session start of
// a returning user advances the daily streak. The load runs detached from ctx
// so one caller giving up does not fail the others waiting on it.
func (r *Registry) Engine(ctx context.Context, userID uuid.UUID) (*Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[userID]
	r.mu.RUnlock()
	if ok {
		e.touch(r.opts.Clock())
		return e, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.loads.DoChan(userID.String(), func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.engines[userID]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		e, err := Open(loadCtx, userID, r.catalog, r.store, r.opts)
		if err != nil {
			return nil, err
		}
		if err := e.RecordLogin(loadCtx); err != nil {
			r.logger.Warn("activation login not persisted", "user_id", userID, "error", err)
		}
		e.touch(r.opts.Clock())

		r.mu.Lock()
		r.engines[userID] = e
		r.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e := res.Val.(*Engine)
		e.touch(r.opts.Clock())
		return e, nil
	}
}

// EvictIdle drops engines unused for longer than idle, flushing unsaved state
// first. An engine whose flush fails stays loaded. It returns the number dropped.
func (r *Registry) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := r.opts.Clock().Add(-idle).UnixNano()

	r.mu.RLock()
	var candidates []*Engine
	for _, e := range r.engines {
		if e.lastUsed.Load() < cutoff {
			candidates = append(candidates, e)
		}
	}
	r.mu.RUnlock()

	evicted := 0
	for _, e := range candidates {
		if err := e.Flush(ctx); err != nil {
			r.logger.Warn("idle engine kept, flush failed", "user_id", e.userID, "error", err)
			continue
		}
		r.mu.Lock()
		if cur, ok := r.engines[e.userID]; ok && cur == e && e.lastUsed.Load() < cutoff {
			delete(r.engines, e.userID)
			evicted++
		}
		r.mu.Unlock()
	}
	return evicted
}

// Lookup returns the engine only if it is already loaded.
func (r *Registry) Lookup(userID uuid.UUID) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[userID]
	return e, ok
}

// Len returns the number of loaded engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Close flushes every loaded engine and reports all failures.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.RUnlock()

	var errs []error
	for _, e := range engines {
		if err := e.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) touch(t time.Time) {
	e.lastUsed.Store(t.UnixNano())
}
