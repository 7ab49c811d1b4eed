package session

import (
	"reflect"
	"testing"
	"time"
)

func newTestSession() *Session {
	return &Session{
		Name:       "t",
		scrollback: newScrollbackBuf(),
		done:       make(chan struct{}),
	}
}

func waitForState(t *testing.T, s *Session, key string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, err := s.Capture(); err == nil {
			if _, ok := st[key]; ok {
				return st
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state section %q never reported", key)
	return nil
}

func TestSetClientKicksPrior(t *testing.T) {
	s := newTestSession()
	kick1 := s.SetClient(make(chan []byte, 1))
	if !s.Info().Connected {
		t.Fatal("expected Connected after SetClient")
	}
	_ = s.SetClient(make(chan []byte, 1))

	select {
	case <-kick1:
	default:
		t.Fatal("first client's kick channel was not closed on displacement")
	}
}

func TestClearClientOwnershipGuard(t *testing.T) {
	s := newTestSession()
	ch1 := make(chan []byte, 1)
	_ = s.SetClient(ch1)
	ch2 := make(chan []byte, 1)
	_ = s.SetClient(ch2)

	s.ClearClient(ch1)
	if !s.Info().Connected {
		t.Fatal("ClearClient with displaced channel should not clear Connected")
	}
	s.ClearClient(ch2)
	if s.Info().Connected {
		t.Fatal("ClearClient with current channel should clear Connected")
	}
}

func TestRecordForwardsToClient(t *testing.T) {
	s := newTestSession()
	ch := make(chan []byte, 1)
	s.SetClient(ch)
	s.record([]byte("hello"))
	if got := <-ch; string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
	if string(s.ScrollbackSnapshot()) != "hello" {
		t.Fatalf("scrollback: %q", s.ScrollbackSnapshot())
	}
}

func TestCaptureBeforeStateReported(t *testing.T) {
	s := newTestSession()
	if _, err := s.Capture(); err == nil {
		t.Fatal("expected error before any state report")
	}
}

func TestRecordStateAcrossChunks(t *testing.T) {
	s := newTestSession()
	s.record([]byte("booting\r\n{\"type\":\"state\",\"state\":{\"grid\""))
	s.record([]byte(":{\"cols\":4}}}\r\n"))
	got, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := map[string]any{"grid": map[string]any{"cols": 4.0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Capture: got %v, want %v", got, want)
	}
}

func TestApplyAndCaptureThroughMock(t *testing.T) {
	m := NewManagerWithSpawnFn(MockSpawnFn)
	s, err := m.Create("mock", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(s.ID)

	s.WriteToPTY([]byte(`{"type":"state","state":{"grid":{"cols":4,"rows":3},"seed":1}}` + "\n"))
	waitForState(t, s, "grid")

	if err := s.Apply(map[string]any{"grid": map[string]any{"cols": 8.0}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := s.Capture()
	want := map[string]any{"grid": map[string]any{"cols": 8.0, "rows": 3.0}, "seed": 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Capture after Apply: got %v, want %v", got, want)
	}

	// The mock echoes the apply line back as output.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.ScrollbackSnapshot()) > 0 && containsApply(s.ScrollbackSnapshot()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("apply line never reached the renderer: %q", s.ScrollbackSnapshot())
}

func TestApplyAfterExit(t *testing.T) {
	s := newTestSession()
	close(s.done)
	if err := s.Apply(map[string]any{"a": 1.0}); err == nil {
		t.Fatal("expected error applying to an exited renderer")
	}
}

func containsApply(b []byte) bool {
	st, ok := parseApply(b)
	return ok && st != nil
}
