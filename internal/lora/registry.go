package lora

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoValidAdapters is returned by Prepare when none of the requested
// adapter names resolve to an existing weight file.
var ErrNoValidAdapters = errors.New("lora: no valid adapters found")

// Conflict records a pair of adapters that should not be composed together.
type Conflict struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Reason string `json:"reason"`
}

// Registry indexes LoRA adapters laid out as {base_dir}/{domain}/{name}.safetensors
// with optional {name}.json sidecars. All lookups are safe for concurrent use.
type Registry struct {
	baseDir        string
	cacheDir       string
	defaultWeights map[string]float64
	normalize      bool
	logger         zerolog.Logger

	mu       sync.Mutex
	adapters map[string]*Adapter
}

// NewRegistry creates an empty registry; call Scan to populate it.
func NewRegistry(baseDir, cacheDir string, defaultWeights map[string]float64, normalize bool, logger zerolog.Logger) *Registry {
	return &Registry{
		baseDir:        baseDir,
		cacheDir:       cacheDir,
		defaultWeights: defaultWeights,
		normalize:      normalize,
		logger:         logger,
		adapters:       make(map[string]*Adapter),
	}
}

// Scan rebuilds the registry from disk and writes the loras.json index to
// the cache directory. A missing base directory yields an empty registry,
// not an error.
func (r *Registry) Scan() (int, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn().Str("path", r.baseDir).Msg("lora: adapter directory not found")
			r.mu.Lock()
			r.adapters = make(map[string]*Adapter)
			r.mu.Unlock()
			return 0, nil
		}
		return 0, fmt.Errorf("read adapter dir: %w", err)
	}

	found := make(map[string]*Adapter)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		domain := entry.Name()
		files, err := filepath.Glob(filepath.Join(r.baseDir, domain, "*.safetensors"))
		if err != nil {
			continue
		}
		for _, file := range files {
			adapter, err := adapterFromFile(file, domain)
			if err != nil {
				r.logger.Warn().Err(err).Str("path", file).Msg("lora: adapter scan failed")
				continue
			}
			found[adapter.FullName()] = adapter
		}
	}

	r.mu.Lock()
	// Carry usage stats across rescans.
	for name, old := range r.adapters {
		if fresh, ok := found[name]; ok {
			fresh.LoadCount = old.LoadCount
			fresh.LastUsed = old.LastUsed
		}
	}
	r.adapters = found
	r.mu.Unlock()

	if err := r.saveIndex(); err != nil {
		r.logger.Warn().Err(err).Msg("lora: failed to write registry index")
	}
	r.logger.Info().Int("count", len(found)).Msg("lora: adapters scanned")
	return len(found), nil
}

func (r *Registry) saveIndex() error {
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	r.mu.Lock()
	index := make(map[string]*Adapter, len(r.adapters))
	for name, adapter := range r.adapters {
		index[name] = adapter
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.cacheDir, "loras.json"), data, 0o644)
}

// Get returns the adapter registered under "{domain}/{name}".
func (r *Registry) Get(fullName string) (*Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adapter, ok := r.adapters[fullName]
	if !ok {
		return nil, false
	}
	copy := *adapter
	return &copy, true
}

// ByDomain returns all adapters in one domain, sorted by name.
func (r *Registry) ByDomain(domain string) []*Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Adapter
	for _, adapter := range r.adapters {
		if adapter.Domain == domain {
			copy := *adapter
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Domains lists the distinct adapter domains, sorted.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	for _, adapter := range r.adapters {
		seen[adapter.Domain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for domain := range seen {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.adapters)
}

// DefaultWeights exposes the configured per-domain default weights.
func (r *Registry) DefaultWeights() map[string]float64 {
	out := make(map[string]float64, len(r.defaultWeights))
	for k, v := range r.defaultWeights {
		out[k] = v
	}
	return out
}

// RecommendedWeights resolves a weight per adapter: the adapter's own
// recommendation when set, else the domain default, else 1.0.
func (r *Registry) RecommendedWeights(names []string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	weights := make([]float64, 0, len(names))
	for _, name := range names {
		weight := 1.0
		if adapter, ok := r.adapters[name]; ok {
			weight = adapter.RecommendedWeight
			if weight == 1.0 {
				if dw, ok := r.defaultWeights[adapter.Domain]; ok {
					weight = dw
				}
			}
		}
		weights = append(weights, weight)
	}
	return weights
}

// NormalizeWeights scales weights by the given method: "sum" divides by the
// absolute sum, "max" by the absolute maximum, anything else is a no-op.
func NormalizeWeights(weights []float64, method string) []float64 {
	if len(weights) == 0 || method == "none" || method == "" {
		return weights
	}
	var divisor float64
	switch method {
	case "sum":
		for _, w := range weights {
			divisor += math.Abs(w)
		}
	case "max":
		for _, w := range weights {
			if abs := math.Abs(w); abs > divisor {
				divisor = abs
			}
		}
	default:
		return weights
	}
	if divisor == 0 {
		return weights
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / divisor
	}
	return out
}

// CheckConflicts reports explicit conflicts and same-domain pairings among
// the requested adapters.
func (r *Registry) CheckConflicts(names []string) []Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conflicts []Conflict
	for i, first := range names {
		a, ok := r.adapters[first]
		if !ok {
			continue
		}
		for _, second := range names[i+1:] {
			b, ok := r.adapters[second]
			if !ok {
				continue
			}
			switch {
			case contains(a.ConflictsWith, second) || contains(b.ConflictsWith, first):
				conflicts = append(conflicts, Conflict{First: first, Second: second, Reason: "explicit_conflict"})
			case a.Domain == b.Domain:
				conflicts = append(conflicts, Conflict{First: first, Second: second, Reason: "same_domain"})
			}
		}
	}
	return conflicts
}

// Prepare resolves adapter names to weight files for the pipeline. Unknown
// or missing adapters are skipped with a warning; if none survive the call
// fails with ErrNoValidAdapters. Weights fall back to recommendations and
// are sum-normalized when both the caller and the config ask for it.
func (r *Registry) Prepare(names []string, weights []float64, normalize bool) ([]string, []float64, []string, error) {
	if len(names) == 0 {
		return nil, nil, nil, nil
	}

	var validNames, paths []string
	r.mu.Lock()
	for _, name := range names {
		adapter, ok := r.adapters[name]
		if !ok {
			r.logger.Warn().Str("adapter", name).Msg("lora: adapter not found")
			continue
		}
		if _, err := os.Stat(adapter.Path); err != nil {
			r.logger.Warn().Str("adapter", name).Str("path", adapter.Path).Msg("lora: adapter file missing")
			continue
		}
		validNames = append(validNames, name)
		paths = append(paths, adapter.Path)
	}
	r.mu.Unlock()

	if len(validNames) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: requested %s", ErrNoValidAdapters, strings.Join(names, ", "))
	}

	if len(weights) == 0 {
		weights = r.RecommendedWeights(validNames)
	} else {
		if len(weights) > len(validNames) {
			weights = weights[:len(validNames)]
		}
		for len(weights) < len(validNames) {
			weights = append(weights, 1.0)
		}
	}

	if normalize && r.normalize {
		weights = NormalizeWeights(weights, "sum")
	}

	for _, c := range r.CheckConflicts(validNames) {
		r.logger.Warn().
			Str("first", c.First).
			Str("second", c.Second).
			Str("reason", c.Reason).
			Msg("lora: adapter conflict")
	}

	now := time.Now()
	r.mu.Lock()
	for _, name := range validNames {
		if adapter, ok := r.adapters[name]; ok {
			adapter.LoadCount++
			adapter.LastUsed = &now
		}
	}
	r.mu.Unlock()

	return validNames, weights, paths, nil
}

func contains(list []string, candidate string) bool {
	for _, item := range list {
		if item == candidate {
			return true
		}
	}
	return false
}
