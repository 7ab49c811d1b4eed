package api_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsMsg struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Name string `json:"name,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

func dialWS(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMsg
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON waiting for %q: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWSNotFound(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := dialWS(t, srv, "/api/hosts/nonexistent/ws")
	if err == nil {
		t.Fatal("expected error connecting to nonexistent host")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func TestWSScrollbackReplay(t *testing.T) {
	srv, mgr, _ := newTestEnv(t)
	s, err := mgr.Create("scrollback", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.WriteToPTY([]byte("frame 1 rendered"))
	time.Sleep(50 * time.Millisecond)

	conn, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	msg := readUntil(t, conn, "output")
	decoded, _ := base64.StdEncoding.DecodeString(msg.Data)
	if string(decoded) != "frame 1 rendered" {
		t.Fatalf("scrollback mismatch: got %q", decoded)
	}
}

func TestWSClosedOnHostExit(t *testing.T) {
	srv, mgr, _ := newTestEnv(t)
	s, err := mgr.Create("close-test", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	mgr.Kill(s.ID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMsg
	if err := conn.ReadJSON(&msg); err != nil {
		// Closed without a message is acceptable.
		return
	}
	if msg.Type != "closed" {
		t.Fatalf("expected 'closed' message, got %q", msg.Type)
	}
}

func TestWSEchoRoundTrip(t *testing.T) {
	srv, mgr, _ := newTestEnv(t)
	s, err := mgr.Create("echo-test", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	input := "ping"
	if err := conn.WriteJSON(wsMsg{Type: "input", Data: base64.StdEncoding.EncodeToString([]byte(input))}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msg := readUntil(t, conn, "output")
	decoded, _ := base64.StdEncoding.DecodeString(msg.Data)
	if string(decoded) != input {
		t.Fatalf("echo mismatch: got %q, want %q", decoded, input)
	}
}

func TestWSApplyPreset(t *testing.T) {
	srv, mgr, reg := newTestEnv(t)
	s, err := mgr.Create("apply-test", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store, _ := reg.Open("grids")
	store.Save("calm", map[string]any{"noise": map[string]any{"speed": 0.1}}, false)

	conn, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(wsMsg{Type: "apply", Name: "missing"})
	if msg := readUntil(t, conn, "error"); !strings.Contains(msg.Data, "missing") {
		t.Fatalf("unexpected error message %q", msg.Data)
	}

	conn.WriteJSON(wsMsg{Type: "apply", Name: "calm"})
	if msg := readUntil(t, conn, "status"); !strings.Contains(msg.Data, "calm") {
		t.Fatalf("unexpected status message %q", msg.Data)
	}
	st, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if st["noise"].(map[string]any)["speed"] != 0.1 {
		t.Fatalf("state after apply: %v", st)
	}
}

func TestWSClientDisplacement(t *testing.T) {
	srv, mgr, _ := newTestEnv(t)
	s, err := mgr.Create("displace-test", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn1, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("conn1 dial: %v", err)
	}
	defer conn1.Close()

	conn2, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("conn2 dial: %v", err)
	}
	defer conn2.Close()

	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMsg
	if err := conn1.ReadJSON(&msg); err == nil {
		t.Logf("conn1 received message after displacement: %q (not a failure)", msg.Type)
	}
}

func TestWSResizeDoesNotPanic(t *testing.T) {
	srv, mgr, _ := newTestEnv(t)
	s, err := mgr.Create("resize-test", "grids")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn, _, err := dialWS(t, srv, "/api/hosts/"+s.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	// Resize on a pipe fd logs an error but must not drop the connection.
	if err := conn.WriteJSON(wsMsg{Type: "resize", Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("WriteJSON resize: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := conn.WriteJSON(wsMsg{Type: "resize", Cols: 100, Rows: 30}); err != nil {
		t.Fatalf("second WriteJSON resize: %v", err)
	}
}
