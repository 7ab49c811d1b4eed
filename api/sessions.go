package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sketch-presets/preset"
	"sketch-presets/session"
)

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Sketch string `json:"sketch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// The sketch must be a valid preset sketch so apply/capture can find its store.
	if _, err := h.registry.Open(req.Sketch); err != nil {
		writePresetError(w, err)
		return
	}

	s, err := h.manager.Create(req.Name, req.Sketch)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidName):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, session.ErrNameTaken):
			http.Error(w, "sketch host name already in use", http.StatusConflict)
		default:
			http.Error(w, "failed to start sketch host", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, s.Info())
}

func (h *handler) killSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Kill(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "sketch host not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to stop sketch host", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hostStore resolves {id} to a running host and the preset store of its sketch.
func (h *handler) hostStore(w http.ResponseWriter, r *http.Request) (*session.Session, *preset.Store, bool) {
	s, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "sketch host not found", http.StatusNotFound)
		return nil, nil, false
	}
	st, err := h.registry.Open(s.Sketch)
	if err != nil {
		writePresetError(w, err)
		return nil, nil, false
	}
	return s, st, true
}

func (h *handler) applyPreset(w http.ResponseWriter, r *http.Request) {
	s, st, ok := h.hostStore(w, r)
	if !ok {
		return
	}
	res, err := preset.ApplyTo(st, chi.URLParam(r, "name"), s)
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) capturePreset(w http.ResponseWriter, r *http.Request) {
	s, st, ok := h.hostStore(w, r)
	if !ok {
		return
	}
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	res, err := preset.SaveFrom(st, chi.URLParam(r, "name"), s, overwrite)
	if err != nil {
		writePresetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
