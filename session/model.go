package session

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"sketch-presets/preset"
)

const maxScrollback = 256 << 10

// Session is a running sketch renderer attached to a PTY. It is the live
// configuration a preset is captured from and applied to.
type Session struct {
	ID        string
	Name      string
	Sketch    string
	CreatedAt time.Time

	command    string
	cmd        *exec.Cmd
	ptmx       *os.File
	scrollback *scrollbackBuf
	lines      lineBuf
	outChan    chan []byte
	kickChan   chan struct{}
	done       chan struct{}

	// outMu guards the viewer channels and the fields below.
	outMu      sync.Mutex
	lastActive time.Time
	connected  bool

	stateMu sync.Mutex
	state   map[string]any
}

var _ preset.Binder = (*Session)(nil)

// Info is a point-in-time copy of a session, safe to encode while the
// renderer keeps running.
type Info struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Sketch     string    `json:"sketch"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Connected  bool      `json:"connected"`
}

func (s *Session) Info() Info {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return Info{
		ID:         s.ID,
		Name:       s.Name,
		Sketch:     s.Sketch,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
		Connected:  s.connected,
	}
}

type scrollbackBuf struct {
	mu   sync.Mutex
	data []byte
	max  int
}

func newScrollbackBuf() *scrollbackBuf {
	return &scrollbackBuf{max: maxScrollback}
}

func (s *scrollbackBuf) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p...)
	if over := len(s.data) - s.max; over > 0 {
		s.data = s.data[over:]
	}
}

func (s *scrollbackBuf) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil
	}
	return append([]byte(nil), s.data...)
}

// Capture returns the renderer's configuration: the last state it reported,
// with any sections applied since layered on top.
func (s *Session) Capture() (map[string]any, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == nil {
		return nil, fmt.Errorf("sketch %q has not reported any state yet", s.Name)
	}
	return preset.MergeSections(nil, s.state), nil
}

// Apply merges payload into the session state section by section and sends
// the payload to the renderer.
func (s *Session) Apply(payload map[string]any) error {
	line, err := encodeApply(payload)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return fmt.Errorf("sketch %q has exited", s.Name)
	default:
	}
	if _, err := s.WriteToPTY(line); err != nil {
		return err
	}
	s.stateMu.Lock()
	s.state = preset.MergeSections(s.state, payload)
	s.stateMu.Unlock()
	return nil
}

// record handles a chunk of renderer output.
func (s *Session) record(data []byte) {
	s.scrollback.Write(data)
	for _, state := range s.lines.states(data) {
		s.stateMu.Lock()
		s.state = preset.MergeSections(s.state, state)
		s.stateMu.Unlock()
	}

	s.outMu.Lock()
	s.lastActive = time.Now()
	if s.outChan != nil {
		select {
		case s.outChan <- data:
		default:
		}
	}
	s.outMu.Unlock()
}

// SetClient registers a channel to receive live renderer output. A previously
// connected client is kicked by closing its kick channel. The returned channel
// is closed if this client is later displaced.
func (s *Session) SetClient(ch chan []byte) <-chan struct{} {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.kickChan != nil {
		close(s.kickChan)
	}
	kick := make(chan struct{})
	s.kickChan = kick
	s.outChan = ch
	s.connected = true
	return kick
}

// ClearClient ends a connection. Session state is only cleared if ch is still
// the current owner; ch is always closed.
func (s *Session) ClearClient(ch chan []byte) {
	s.outMu.Lock()
	if s.outChan == ch {
		s.outChan = nil
		s.connected = false
		s.kickChan = nil
	}
	s.outMu.Unlock()
	close(ch)
}

func (s *Session) ScrollbackSnapshot() []byte {
	return s.scrollback.Snapshot()
}

// Done is closed when the renderer process exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) WriteToPTY(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

// PTY returns the PTY master for pty.Setsize calls.
func (s *Session) PTY() *os.File {
	return s.ptmx
}
