package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sketch-presets/api"
	"sketch-presets/config"
	"sketch-presets/preset"
	"sketch-presets/session"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	registry := preset.NewRegistry(preset.NewFileBackend(cfg.PresetDir))
	for _, sketch := range cfg.DefaultSketches {
		s, err := registry.Open(sketch)
		if err != nil {
			log.Fatalf("default sketch %q: %v", sketch, err)
		}
		log.Printf("sketch %s: %d preset(s) in %s", sketch, s.Count(), s.Key())
	}

	var staticFS fs.FS
	if cfg.StaticDir != "" {
		staticFS = os.DirFS(cfg.StaticDir)
	}

	manager := session.NewManager(cfg.SketchCommand)
	defer manager.Shutdown()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.RegisterRoutes(manager, registry, staticFS),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	log.Printf("sketch-presets listening on %s (presets in %s)", srv.Addr, cfg.PresetDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
