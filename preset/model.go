package preset

import (
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is stamped on every saved preset and on every export.
const SchemaVersion = "1.0"

// ClearConfirmation must be passed to Clear verbatim.
const ClearConfirmation = "DELETE_ALL"

const (
	fieldTimestamp     = "timestamp"
	fieldSchemaVersion = "schemaVersion"
)

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrConflict             = errors.New("preset already exists")
	ErrNotFound             = errors.New("preset not found")
	ErrPersistence          = errors.New("preset storage failure")
	ErrInvalidFormat        = errors.New("invalid preset data format")
	ErrConfirmationMismatch = errors.New("confirmation mismatch")
)

// Preset is a named parameter snapshot: the payload sections captured from a
// sketch plus the timestamp and schemaVersion fields added at save time.
type Preset map[string]any

// Timestamp returns the save time in milliseconds since the epoch, or 0.
func (p Preset) Timestamp() int64 {
	switch v := p[fieldTimestamp].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (p Preset) SchemaVersion() string {
	s, _ := p[fieldSchemaVersion].(string)
	return s
}

// Payload returns the preset without the fields the store adds.
func (p Preset) Payload() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if k == fieldTimestamp || k == fieldSchemaVersion {
			continue
		}
		out[k] = v
	}
	return out
}

// Collection maps preset name to preset.
type Collection map[string]Preset

// Mode reports which operation the store is running. It is a status flag for
// UI feedback, not a lock.
type Mode int32

const (
	Idle Mode = iota
	Saving
	Loading
	Deleting
)

func (m Mode) String() string {
	switch m {
	case Saving:
		return "saving"
	case Loading:
		return "loading"
	case Deleting:
		return "deleting"
	default:
		return "idle"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	for _, c := range []Mode{Idle, Saving, Loading, Deleting} {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}

// Export is the document produced by Store.Export and consumed by Store.Import.
type Export struct {
	SchemaVersion string     `json:"schemaVersion"`
	ExportedAt    string     `json:"exportedAt"`
	Presets       Collection `json:"presets"`
}

// ImportMode selects how imported presets combine with existing ones.
type ImportMode string

const (
	// Merge keeps unrelated presets; imported presets win name collisions.
	Merge ImportMode = "merge"
	// Overwrite replaces the whole collection.
	Overwrite ImportMode = "overwrite"
)

// ParseImportMode maps "" to Merge and rejects anything else unknown.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(s) {
	case "", Merge:
		return Merge, nil
	case Overwrite:
		return Overwrite, nil
	}
	return "", fmt.Errorf("import mode %q is not \"merge\" or \"overwrite\": %w", s, ErrInvalidArgument)
}

// Result is returned by successful mutations.
type Result struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// ChangeKind names a committed mutation or a mode transition.
type ChangeKind string

const (
	ChangeSaved    ChangeKind = "saved"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeImported ChangeKind = "imported"
	ChangeCleared  ChangeKind = "cleared"
	ChangeMode     ChangeKind = "mode"
)

// Change describes something observers of a store may want to redraw for.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Name  string     `json:"name,omitempty"`
	Count int        `json:"count"`
	Mode  Mode       `json:"mode"`
	At    time.Time  `json:"at"`
}
