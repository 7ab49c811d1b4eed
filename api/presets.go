package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sketch-presets/preset"
)

const maxImportBytes = 8 << 20

type presetIndex struct {
	Sketch string   `json:"sketch"`
	Names  []string `json:"names"`
	Count  int      `json:"count"`
	Mode   string   `json:"mode"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writePresetError maps preset errors onto status codes. The message is the
// error text, meant for direct display.
func writePresetError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, preset.ErrInvalidArgument),
		errors.Is(err, preset.ErrInvalidFormat),
		errors.Is(err, preset.ErrConfirmationMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, preset.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, preset.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, preset.ErrBinding):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("preset operation failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// store resolves the {sketch} URL parameter for a write, registering the
// sketch. It writes an error response on failure.
func (h *handler) store(w http.ResponseWriter, r *http.Request) (*preset.Store, bool) {
	return h.resolve(w, r, h.registry.Open)
}

// lookup resolves {sketch} for a read. Unknown sketches stay unregistered.
func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*preset.Store, bool) {
	return h.resolve(w, r, h.registry.Lookup)
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request, get func(string) (*preset.Store, error)) (*preset.Store, bool) {
	s, err := get(chi.URLParam(r, "sketch"))
	if err != nil {
		writePresetError(w, err)
		return nil, false
	}
	return s, true
}

func (h *handler) listSketches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Sketches())
}

func (h *handler) listPresets(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, presetIndex{
		Sketch: chi.URLParam(r, "sketch"),
		Names:  s.List(),
		Count:  s.Count(),
		Mode:   s.Mode().String(),
	})
}

func (h *handler) getPreset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p, err := s.Load(chi.URLParam(r, "name"))
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) putPreset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	res, err := s.Save(chi.URLParam(r, "name"), payload, overwrite)
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) deletePreset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	res, err := s.Delete(chi.URLParam(r, "name"))
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) exportPresets(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	exp := s.Export()
	filename := fmt.Sprintf("%s-presets-%d.json", chi.URLParam(r, "sketch"), h.now().UnixMilli())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(exp)
}

func (h *handler) importPresets(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	mode, err := preset.ParseImportMode(r.URL.Query().Get("mode"))
	if err != nil {
		writePresetError(w, err)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	res, err := s.ImportJSON(raw, mode)
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) clearPresets(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var req struct {
		Confirmation string `json:"confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.Clear(req.Confirmation)
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
