package session

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNameTaken = errors.New("sketch host name already in use")
var ErrNotFound = errors.New("sketch host not found")
var ErrInvalidName = errors.New("sketch host name and sketch are required")

// SpawnFunc starts the renderer for s and arranges for onExit(s.ID) to be
// called once it ends.
type SpawnFunc func(s *Session, onExit func(string)) error

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	command  string
	spawnFn  SpawnFunc
}

// NewManager runs each sketch host as `sh -c command` on a PTY.
func NewManager(command string) *Manager {
	return &Manager{sessions: make(map[string]*Session), command: command, spawnFn: spawnPTY}
}

// NewManagerWithSpawnFn creates a Manager with a custom spawn function.
// Pass MockSpawnFn for a pipe-based in-process mock (no real PTY).
func NewManagerWithSpawnFn(fn SpawnFunc) *Manager {
	return &Manager{sessions: make(map[string]*Session), spawnFn: fn}
}

// MockSpawnFn wires an os.Pipe so data written via WriteToPTY is echoed back
// as renderer output. A test can report state by writing a state line.
func MockSpawnFn(s *Session, onExit func(string)) error {
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	s.ptmx = w
	go func() {
		defer r.Close()
		readLoop(s, r, func() { onExit(s.ID) })
	}()
	return nil
}

func (m *Manager) Create(name, sketch string) (*Session, error) {
	name = strings.TrimSpace(name)
	sketch = strings.TrimSpace(sketch)
	if name == "" || sketch == "" {
		return nil, ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.Name == name {
			return nil, ErrNameTaken
		}
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.New().String(),
		Name:       name,
		Sketch:     sketch,
		CreatedAt:  now,
		lastActive: now,
		command:    m.command,
		scrollback: newScrollbackBuf(),
		done:       make(chan struct{}),
	}
	if err := m.spawnFn(s, m.remove); err != nil {
		return nil, err
	}

	m.sessions[s.ID] = s
	return s, nil
}

// List returns snapshots of the sessions ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s.Info())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	if s.ptmx != nil {
		s.ptmx.Close()
	}
	delete(m.sessions, id)
	return nil
}

// Shutdown kills every running session.
func (m *Manager) Shutdown() {
	for _, s := range m.List() {
		m.Kill(s.ID)
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
