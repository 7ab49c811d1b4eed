package session

import (
	"bytes"
	"log"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// Renderers speak newline-delimited JSON over the PTY:
//
//	-> {"type":"apply","state":{...}}
//	<- {"type":"state","state":{...}}
//
// Any other output is plain log text and only goes to scrollback and viewers.
const (
	msgApply = "apply"
	msgState = "state"

	maxLine = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type renderMessage struct {
	Type  string         `json:"type"`
	State map[string]any `json:"state"`
}

func encodeApply(payload map[string]any) ([]byte, error) {
	line, err := json.Marshal(renderMessage{Type: msgApply, State: payload})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// lineBuf reassembles output chunks into lines. It is used only by the
// session's read goroutine.
type lineBuf struct {
	pending []byte
}

// states returns the state reports completed by data, in order.
func (b *lineBuf) states(data []byte) []map[string]any {
	b.pending = append(b.pending, data...)
	var out []map[string]any
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(b.pending[:i])
		b.pending = b.pending[i+1:]
		if st, ok := parseState(line); ok {
			out = append(out, st)
		}
	}
	if len(b.pending) > maxLine {
		log.Printf("renderer line exceeds %d bytes, discarding", maxLine)
		b.pending = nil
	}
	return out
}

func parseState(line []byte) (map[string]any, bool) {
	if len(line) == 0 || line[0] != '{' || !gjson.ValidBytes(line) {
		return nil, false
	}
	if gjson.GetBytes(line, "type").String() != msgState {
		return nil, false
	}
	var msg renderMessage
	if err := json.Unmarshal(line, &msg); err != nil || msg.State == nil {
		return nil, false
	}
	return msg.State, true
}
