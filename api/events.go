package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sketch-presets/preset"
)

// presetEvent is one message on a sketch's change feed.
type presetEvent struct {
	ID     string `json:"id"`
	Sketch string `json:"sketch"`
	preset.Change
}

// eventHub fans store changes out to websocket subscribers, per sketch.
// Slow subscribers drop events rather than stall the store.
type eventHub struct {
	mu   sync.Mutex
	subs map[string]map[chan presetEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[chan presetEvent]struct{})}
}

func (h *eventHub) publish(sketch string, c preset.Change) {
	ev := presetEvent{ID: uuid.New().String(), Sketch: sketch, Change: c}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sketch] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) subscribe(sketch string) (<-chan presetEvent, func()) {
	ch := make(chan presetEvent, 64)
	h.mu.Lock()
	if h.subs[sketch] == nil {
		h.subs[sketch] = make(map[chan presetEvent]struct{})
	}
	h.subs[sketch][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[sketch], ch)
		if len(h.subs[sketch]) == 0 {
			delete(h.subs, sketch)
		}
	}
}

// handleEvents streams a sketch's preset changes. The first message is a
// snapshot ("mode" kind) so the client can render the current state.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sketch := chi.URLParam(r, "sketch")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.events.subscribe(sketch)
	defer cancel()

	hello := presetEvent{
		ID:     uuid.New().String(),
		Sketch: sketch,
		Change: preset.Change{Kind: preset.ChangeMode, Count: s.Count(), Mode: s.Mode(), At: h.now()},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// Reader goroutine only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
