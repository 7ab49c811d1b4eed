package preset

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var sketchName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Registry opens one Store per sketch, all sharing a backend. Sketch "grids"
// persists under the key "grids-presets".
type Registry struct {
	mu      sync.Mutex
	backend Backend
	stores  map[string]*Store
	opts    []Option

	hookMu   sync.RWMutex
	onChange func(sketch string, c Change)
}

func NewRegistry(backend Backend, opts ...Option) *Registry {
	return &Registry{backend: backend, stores: make(map[string]*Store), opts: opts}
}

// OnChange sets a hook receiving changes from every store in the registry.
func (r *Registry) OnChange(fn func(sketch string, c Change)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onChange = fn
}

func (r *Registry) notify(sketch string, c Change) {
	r.hookMu.RLock()
	fn := r.onChange
	r.hookMu.RUnlock()
	if fn != nil {
		fn(sketch, c)
	}
}

const keySuffix = "-presets"

// StorageKey returns the backend key for a sketch.
func StorageKey(sketch string) string {
	return sketch + keySuffix
}

func checkSketch(sketch string) error {
	if !sketchName.MatchString(sketch) {
		return fmt.Errorf("sketch name %q must be lowercase letters, digits, '.', '_' or '-': %w", sketch, ErrInvalidArgument)
	}
	return nil
}

// Open returns the store for sketch, loading it on first use. The sketch is
// registered from then on.
func (r *Registry) Open(sketch string) (*Store, error) {
	if err := checkSketch(sketch); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(sketch), nil
}

// Lookup returns the store for sketch for reading. A sketch that is neither
// open nor stored in the backend is not registered; Lookup returns a detached
// empty store for it instead.
func (r *Registry) Lookup(sketch string) (*Store, error) {
	if err := checkSketch(sketch); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[sketch]; ok {
		return s, nil
	}
	if _, ok, err := r.backend.Get(StorageKey(sketch)); err == nil && ok {
		return r.openLocked(sketch), nil
	}
	return &Store{backend: r.backend, key: StorageKey(sketch), presets: Collection{}, now: time.Now}, nil
}

func (r *Registry) openLocked(sketch string) *Store {
	if s, ok := r.stores[sketch]; ok {
		return s
	}
	opts := append(r.opts[:len(r.opts):len(r.opts)], WithOnChange(func(c Change) { r.notify(sketch, c) }))
	s := NewStore(r.backend, StorageKey(sketch), opts...)
	r.stores[sketch] = s
	return s
}

// Sketches returns the open sketches plus every sketch with presets in the
// backend, sorted.
func (r *Registry) Sketches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.stores))
	for name := range r.stores {
		seen[name] = true
	}
	keys, err := r.backend.Keys()
	if err != nil {
		log.Printf("presets: listing stored sketches failed: %v", err)
	}
	for _, k := range keys {
		name, ok := strings.CutSuffix(k, keySuffix)
		if ok && sketchName.MatchString(name) {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
