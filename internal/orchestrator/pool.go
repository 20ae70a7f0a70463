package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"gend/internal/engine"
	"gend/pkg/types"
)

// poolEntry tracks one load, pending or resolved. ready is closed when the
// load settles; res/err are immutable afterwards.
type poolEntry struct {
	ready chan struct{}
	res   *engine.Resource
	err   error
}

// ResourcePool lazily acquires and memoizes (tokenizer, model) pairs keyed by
// ModelConfig. Configs are compared structurally: a second Acquire with equal
// fields joins the in-flight load instead of starting a second one. Resources
// live for the process lifetime; there is no eviction. Failed loads are not
// cached, so a retry with the same config starts fresh.
type ResourcePool struct {
	mu       sync.Mutex
	provider engine.Provider
	registry []types.Model
	entries  map[types.ModelConfig]*poolEntry
}

// NewResourcePool constructs a pool over the given provider and registry.
func NewResourcePool(provider engine.Provider, registry []types.Model) *ResourcePool {
	return &ResourcePool{
		provider: provider,
		registry: registry,
		entries:  make(map[types.ModelConfig]*poolEntry),
	}
}

// Acquire returns the resource for cfg, loading it on first use. onProgress
// observes per-artifact load progress; it fires only for the call that
// initiates the load, never on a cache hit or a joined wait, and never after
// Acquire returns.
func (p *ResourcePool) Acquire(ctx context.Context, cfg types.ModelConfig, onProgress engine.ProgressFunc) (*engine.Resource, error) {
	p.mu.Lock()
	if e, ok := p.entries[cfg]; ok {
		p.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.res, nil
	}
	e := &poolEntry{ready: make(chan struct{})}
	p.entries[cfg] = e
	p.mu.Unlock()

	start := time.Now()
	res, err := p.load(ctx, cfg, onProgress)
	p.mu.Lock()
	if err != nil {
		// No poisoned cache entries: the next Acquire with this config
		// retries the load.
		delete(p.entries, cfg)
		e.err = ErrLoad(err)
	} else {
		e.res = res
	}
	close(e.ready)
	p.mu.Unlock()
	if err != nil {
		log.Printf("pool event=load_error model=%q err=%v", cfg.Model, err)
		return nil, e.err
	}
	loadDuration.Observe(time.Since(start).Seconds())
	loadsTotal.Inc()
	log.Printf("pool event=load_ready model=%q dur_ms=%d", cfg.Model, time.Since(start)/time.Millisecond)
	return res, nil
}

// load resolves the model from the registry and delegates to the provider.
// A registry miss is an error when a registry is configured; with an empty
// registry (server-backed providers) the config's model id passes through.
func (p *ResourcePool) load(ctx context.Context, cfg types.ModelConfig, onProgress engine.ProgressFunc) (*engine.Resource, error) {
	mdl, ok := p.modelByID(cfg.Model)
	if !ok {
		if len(p.registry) > 0 {
			return nil, ErrModelNotFound(cfg.Model)
		}
		mdl = types.Model{ID: cfg.Model, Name: cfg.Model}
	}
	return p.provider.Load(ctx, mdl, cfg, onProgress)
}

func (p *ResourcePool) modelByID(id string) (types.Model, bool) {
	for _, mdl := range p.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Cached reports whether cfg has a resolved resource.
func (p *ResourcePool) Cached(cfg types.ModelConfig) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[cfg]
	if !ok {
		return false
	}
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

// Resolved reports the number of successfully loaded resources.
func (p *ResourcePool) Resolved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		select {
		case <-e.ready:
			if e.err == nil {
				n++
			}
		default:
		}
	}
	return n
}

// Len reports the number of resolved or in-flight entries.
func (p *ResourcePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close releases every resolved resource, returning the first close error.
// Pending loads are skipped; their resources belong to the provider until
// the load settles. The pool must not be used afterwards.
func (p *ResourcePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for cfg, e := range p.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.err == nil && e.res != nil {
			if err := e.res.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(p.entries, cfg)
	}
	return first
}

// ListModels returns a copy of the registry.
func (p *ResourcePool) ListModels() []types.Model {
	out := make([]types.Model, len(p.registry))
	copy(out, p.registry)
	return out
}
