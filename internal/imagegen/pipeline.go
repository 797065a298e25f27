package imagegen

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Loadable is implemented by backends that need an expensive warm-up before
// they can generate (weight loading, device transfer). Backends without it
// are treated as always ready.
type Loadable interface {
	Load() error
	Unload()
}

// Pipeline owns the single generation backend. Only the queue worker calls
// Generate, so the backend itself needs no locking; the pipeline's mutex only
// guards load state and the adapter bookkeeping, which the HTTP layer reads.
type Pipeline struct {
	gen    Generator
	logger zerolog.Logger

	mu            sync.Mutex
	loaded        bool
	loading       bool
	loadedCh      chan struct{}
	loadErr       error
	cache         *lru.Cache[string, string]
	active        []string
	activeWeights []float64
}

// NewPipeline wraps the backend with load-state tracking and an LRU of
// registered adapters (name -> weight file path).
func NewPipeline(gen Generator, maxCachedAdapters int, logger zerolog.Logger) (*Pipeline, error) {
	if gen == nil {
		return nil, fmt.Errorf("pipeline: generator is required")
	}
	if maxCachedAdapters < 1 {
		maxCachedAdapters = 1
	}
	p := &Pipeline{gen: gen, logger: logger}
	cache, err := lru.NewWithEvict[string, string](maxCachedAdapters, func(name, _ string) {
		p.logger.Debug().Str("adapter", name).Msg("pipeline: adapter evicted from cache")
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: adapter cache: %w", err)
	}
	p.cache = cache
	return p, nil
}

// Load warms up the backend. Safe to call concurrently; duplicate calls wait
// for the first one to finish.
func (p *Pipeline) Load() error {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return nil
	}
	if p.loading {
		ch := p.loadedCh
		p.mu.Unlock()
		<-ch
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.loadErr
	}
	p.loading = true
	p.loadedCh = make(chan struct{})
	ch := p.loadedCh
	p.mu.Unlock()

	var err error
	if l, ok := p.gen.(Loadable); ok {
		err = l.Load()
	}

	p.mu.Lock()
	p.loading = false
	p.loadErr = err
	p.loaded = err == nil
	close(ch)
	p.mu.Unlock()

	if err != nil {
		p.logger.Error().Err(err).Msg("pipeline: load failed")
		return fmt.Errorf("load backend: %w", err)
	}
	p.logger.Info().Msg("pipeline: backend loaded")
	return nil
}

// Unload releases the backend and clears adapter state.
func (p *Pipeline) Unload() {
	p.mu.Lock()
	wasLoaded := p.loaded
	p.loaded = false
	p.active = nil
	p.activeWeights = nil
	p.cache.Purge()
	p.mu.Unlock()
	if wasLoaded {
		if l, ok := p.gen.(Loadable); ok {
			l.Unload()
		}
		p.logger.Info().Msg("pipeline: backend unloaded")
	}
}

// Generate runs one job. If the backend is still loading, the call blocks
// until the load finishes; if it has never been loaded, it is loaded now.
// The first queued job therefore pays the load cost instead of failing.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest, progress func(step, total int)) (*Result, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return p.gen.Generate(ctx, req, progress)
}

func (p *Pipeline) ensureLoaded(ctx context.Context) error {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return nil
	}
	if p.loading {
		ch := p.loadedCh
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
		err := p.loadErr
		p.mu.Unlock()
		if err != nil {
			return fmt.Errorf("load backend: %w", err)
		}
		return nil
	}
	p.mu.Unlock()
	return p.Load()
}

// LoadAdapter registers an adapter weight file under a name, keeping at most
// the configured number cached.
func (p *Pipeline) LoadAdapter(name, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(name, path)
}

// SetAdapters makes the named adapters active for subsequent generations.
func (p *Pipeline) SetAdapters(names []string, weights []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		if _, ok := p.cache.Get(name); !ok {
			return fmt.Errorf("adapter %q not loaded", name)
		}
	}
	p.active = append([]string(nil), names...)
	p.activeWeights = append([]float64(nil), weights...)
	return nil
}

// Status reports pipeline state for /health and /queue.
func (p *Pipeline) Status() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"loaded":          p.loaded,
		"loading":         p.loading,
		"active_adapters": append([]string(nil), p.active...),
		"cached_adapters": p.cache.Len(),
	}
}
