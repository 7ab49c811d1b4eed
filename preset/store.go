package preset

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store holds one sketch's presets in memory and mirrors them to a single
// backend key. Every mutation persists the whole collection.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	key     string
	presets Collection
	mode    atomic.Int32
	now     func() time.Time

	// notifyMu serialises onChange; Load only holds the read lock.
	notifyMu sync.Mutex
	onChange func(Change)
}

type Option func(*Store)

// WithClock overrides time.Now for timestamps and export dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOnChange registers fn to be called after each committed mutation and on
// every mode transition. Calls never overlap, and fn must not call back into
// the store.
func WithOnChange(fn func(Change)) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore loads the collection stored under key. A missing, unreadable or
// corrupt value yields an empty store; the problem is logged, not returned.
func NewStore(backend Backend, key string, opts ...Option) *Store {
	s := &Store{backend: backend, key: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.presets = s.loadFromBackend()
	return s
}

// Key returns the backend key this store persists under.
func (s *Store) Key() string { return s.key }

func (s *Store) loadFromBackend() Collection {
	raw, ok, err := s.backend.Get(s.key)
	if err != nil {
		log.Printf("presets %s: read failed, starting empty: %v", s.key, err)
		return Collection{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Collection{}
	}
	var stored Collection
	if err := json.UnmarshalFromString(raw, &stored); err != nil {
		log.Printf("presets %s: stored value is corrupt, starting empty: %v", s.key, err)
		return Collection{}
	}
	presets := make(Collection, len(stored))
	for name, p := range stored {
		if strings.TrimSpace(name) == "" || p == nil {
			log.Printf("presets %s: dropping invalid entry %q", s.key, name)
			continue
		}
		presets[name] = p
	}
	return presets
}

// List returns preset names sorted lexicographically.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.presets[name]
	return ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.presets)
}

// Mode returns the operation currently in flight, or Idle.
func (s *Store) Mode() Mode {
	return Mode(s.mode.Load())
}

// Save stores payload under the trimmed name, stamped with the current time
// and SchemaVersion. An existing preset is replaced only when overwrite is set.
func (s *Store) Save(name string, payload map[string]any, overwrite bool) (Result, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Result{}, fmt.Errorf("preset name cannot be empty: %w", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.presets[trimmed]; exists && !overwrite {
		return Result{}, fmt.Errorf("preset %q already exists, use overwrite to replace it: %w", trimmed, ErrConflict)
	}

	s.setMode(Saving)
	defer s.setMode(Idle)

	p, err := normalize(payload)
	if err != nil {
		return Result{}, fmt.Errorf("preset %q payload is not serializable: %w", trimmed, ErrInvalidArgument)
	}
	p[fieldTimestamp] = float64(s.now().UnixMilli())
	p[fieldSchemaVersion] = SchemaVersion

	next := s.presets.with(trimmed, p)
	if err := s.persist(next); err != nil {
		return Result{}, err
	}
	s.presets = next
	s.notify(ChangeSaved, trimmed)
	return Result{Message: fmt.Sprintf("preset %q saved successfully", trimmed), Name: trimmed}, nil
}

// Load returns a copy of the named preset.
func (s *Store) Load(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[name]
	if !ok {
		return nil, fmt.Errorf("preset %q does not exist: %w", name, ErrNotFound)
	}
	s.setMode(Loading)
	defer s.setMode(Idle)
	return deepCopy(p).(map[string]any), nil
}

func (s *Store) Delete(name string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[name]; !ok {
		return Result{}, fmt.Errorf("preset %q does not exist: %w", name, ErrNotFound)
	}

	s.setMode(Deleting)
	defer s.setMode(Idle)

	next := s.presets.without(name)
	if err := s.persist(next); err != nil {
		return Result{}, err
	}
	s.presets = next
	s.notify(ChangeDeleted, name)
	return Result{Message: fmt.Sprintf("preset %q deleted successfully", name), Name: name}, nil
}

// Export returns a detached copy of the whole collection.
func (s *Store) Export() Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Export{
		SchemaVersion: SchemaVersion,
		ExportedAt:    s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Presets:       s.presets.clone(),
	}
}

// Import adds data.Presets to the store. In Merge mode imported presets win
// name collisions; in Overwrite mode they replace the collection. The reported
// count is len(data.Presets), duplicates included.
func (s *Store) Import(data Export, mode ImportMode) (Result, error) {
	if data.Presets == nil {
		return Result{}, fmt.Errorf("import has no presets object: %w", ErrInvalidFormat)
	}
	if mode != Merge && mode != Overwrite {
		return Result{}, fmt.Errorf("import mode %q is not \"merge\" or \"overwrite\": %w", mode, ErrInvalidArgument)
	}
	incoming := make(Collection, len(data.Presets))
	for name, p := range data.Presets {
		if strings.TrimSpace(name) == "" {
			return Result{}, fmt.Errorf("import contains a preset with an empty name: %w", ErrInvalidFormat)
		}
		if p == nil {
			return Result{}, fmt.Errorf("import preset %q is null: %w", name, ErrInvalidFormat)
		}
		np, err := normalize(p)
		if err != nil {
			return Result{}, fmt.Errorf("import preset %q is not serializable: %w", name, ErrInvalidFormat)
		}
		incoming[name] = np
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next Collection
	if mode == Overwrite {
		next = incoming
	} else {
		next = make(Collection, len(s.presets)+len(incoming))
		for name, p := range s.presets {
			next[name] = p
		}
		for name, p := range incoming {
			next[name] = p
		}
	}
	if err := s.persist(next); err != nil {
		return Result{}, err
	}
	s.presets = next
	n := len(data.Presets)
	s.notify(ChangeImported, "")
	return Result{Message: fmt.Sprintf("imported %d preset(s) successfully", n), Count: n}, nil
}

// ImportJSON imports the "presets" object of raw. Other top-level fields are
// informational and not checked. Each preset must itself be an object.
func (s *Store) ImportJSON(raw []byte, mode ImportMode) (Result, error) {
	if !gjson.ValidBytes(raw) {
		return Result{}, fmt.Errorf("import is not valid JSON: %w", ErrInvalidFormat)
	}
	presets := gjson.GetBytes(raw, "presets")
	if !presets.IsObject() {
		return Result{}, fmt.Errorf("import has no presets object: %w", ErrInvalidFormat)
	}
	var badName string
	bad := false
	presets.ForEach(func(name, p gjson.Result) bool {
		if !p.IsObject() {
			badName, bad = name.String(), true
			return false
		}
		return true
	})
	if bad {
		return Result{}, fmt.Errorf("import preset %q is not an object: %w", badName, ErrInvalidFormat)
	}
	var c Collection
	if err := json.UnmarshalFromString(presets.Raw, &c); err != nil {
		return Result{}, fmt.Errorf("import could not be decoded: %v: %w", err, ErrInvalidFormat)
	}
	return s.Import(Export{Presets: c}, mode)
}

// Clear removes every preset. confirmation must equal ClearConfirmation.
func (s *Store) Clear(confirmation string) (Result, error) {
	if confirmation != ClearConfirmation {
		return Result{}, fmt.Errorf("confirmation string does not match, type %q to confirm: %w", ClearConfirmation, ErrConfirmationMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Collection{}
	if err := s.persist(next); err != nil {
		return Result{}, err
	}
	s.presets = next
	s.notify(ChangeCleared, "")
	return Result{Message: "all presets cleared successfully"}, nil
}

// persist writes next under the store key. Caller must hold s.mu.
func (s *Store) persist(next Collection) error {
	data, err := json.MarshalToString(next)
	if err != nil {
		return fmt.Errorf("failed to encode presets: %v: %w", err, ErrPersistence)
	}
	if err := s.backend.Set(s.key, data); err != nil {
		log.Printf("presets %s: write failed: %v", s.key, err)
		return fmt.Errorf("failed to save presets to storage: %v: %w", err, ErrPersistence)
	}
	return nil
}

// setMode and notify expect s.mu to be held (read or write).
func (s *Store) setMode(m Mode) {
	if Mode(s.mode.Swap(int32(m))) == m {
		return
	}
	s.notify(ChangeMode, "")
}

func (s *Store) notify(kind ChangeKind, name string) {
	if s.onChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onChange(Change{
		Kind:  kind,
		Name:  name,
		Count: len(s.presets),
		Mode:  s.Mode(),
		At:    s.now(),
	})
}

func (c Collection) with(name string, p Preset) Collection {
	next := make(Collection, len(c)+1)
	for k, v := range c {
		next[k] = v
	}
	next[name] = p
	return next
}

func (c Collection) without(name string) Collection {
	next := make(Collection, len(c))
	for k, v := range c {
		if k != name {
			next[k] = v
		}
	}
	return next
}

func (c Collection) clone() Collection {
	out := make(Collection, len(c))
	for k, v := range c {
		out[k] = deepCopy(map[string]any(v)).(map[string]any)
	}
	return out
}

// normalize round-trips v through JSON so stored values only hold the types
// a reload from the backend would produce.
func normalize(v any) (Preset, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Preset{}
	}
	return p, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case Preset:
		return deepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
