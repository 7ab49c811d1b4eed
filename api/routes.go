package api

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sketch-presets/preset"
	"sketch-presets/session"
)

type handler struct {
	manager  *session.Manager
	registry *preset.Registry
	events   *eventHub
	now      func() time.Time
}

// RegisterRoutes builds the HTTP API. staticFS may be nil; otherwise its
// index.html is served at / and its files under /static/.
func RegisterRoutes(manager *session.Manager, registry *preset.Registry, staticFS fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &handler{manager: manager, registry: registry, events: newEventHub(), now: time.Now}
	registry.OnChange(h.events.publish)

	r.Route("/api/sketches", func(r chi.Router) {
		r.Get("/", h.listSketches)
		r.Route("/{sketch}", func(r chi.Router) {
			r.Get("/presets", h.listPresets)
			r.Get("/presets/{name}", h.getPreset)
			r.Put("/presets/{name}", h.putPreset)
			r.Delete("/presets/{name}", h.deletePreset)
			r.Get("/export", h.exportPresets)
			r.Post("/import", h.importPresets)
			r.Post("/clear", h.clearPresets)
			r.Get("/events", h.handleEvents)
		})
	})

	r.Route("/api/hosts", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Post("/", h.createSession)
		r.Delete("/{id}", h.killSession)
		r.Post("/{id}/apply/{name}", h.applyPreset)
		r.Post("/{id}/capture/{name}", h.capturePreset)
		r.Get("/{id}/ws", h.handleWS)
	})

	if staticFS != nil {
		r.Get("/", serveFile(staticFS, "index.html"))
		r.Get("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))).ServeHTTP)
	}

	return r
}

// serveFile reads a single file from fsys and sends it. http.FileServer would
// redirect requests ending in index.html.
func serveFile(fsys fs.FS, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}
}
