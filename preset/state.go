package preset

import (
	"errors"
	"fmt"
)

// ErrBinding wraps failures reported by a Binder.
var ErrBinding = errors.New("live state unavailable")

// Binder connects a store to live configuration: Capture snapshots it and
// Apply writes a payload back and triggers a redraw.
type Binder interface {
	Capture() (map[string]any, error)
	Apply(payload map[string]any) error
}

// SaveFrom captures the binder's current state and saves it as name.
func SaveFrom(s *Store, name string, b Binder, overwrite bool) (Result, error) {
	state, err := b.Capture()
	if err != nil {
		return Result{}, fmt.Errorf("capture state: %w: %w", ErrBinding, err)
	}
	return s.Save(name, state, overwrite)
}

// ApplyTo loads name and hands its payload, without store fields, to the binder.
func ApplyTo(s *Store, name string, b Binder) (Result, error) {
	p, err := s.Load(name)
	if err != nil {
		return Result{}, err
	}
	if err := b.Apply(p.Payload()); err != nil {
		return Result{}, fmt.Errorf("apply preset %q: %w: %w", name, ErrBinding, err)
	}
	return Result{Message: fmt.Sprintf("preset %q loaded successfully", name), Name: name}, nil
}

// MergeSections assigns each section of incoming onto the same section of
// current. Object sections are merged key by key; any other value replaces the
// section. Sections missing from incoming keep their current values. current
// is not modified.
func MergeSections(current, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(incoming))
	for k, v := range current {
		out[k] = v
	}
	for section, v := range incoming {
		in, ok := v.(map[string]any)
		if !ok {
			out[section] = v
			continue
		}
		merged := make(map[string]any)
		if cur, ok := out[section].(map[string]any); ok {
			for k, cv := range cur {
				merged[k] = cv
			}
		}
		for k, iv := range in {
			merged[k] = iv
		}
		out[section] = merged
	}
	return out
}

// Decode fills v, typically a sketch's own parameter struct, from p.
func Decode(p Preset, v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
