package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sketch-presets/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "PRESET_DIR", "SKETCH_COMMAND", "STATIC_DIR", "DEFAULT_SKETCHES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.PresetDir != "/data/presets" || cfg.SketchCommand != "cat" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DefaultSketches != nil {
		t.Fatalf("expected no default sketches, got %v", cfg.DefaultSketches)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	data := "PORT=9090\nPRESET_DIR=/tmp/p\nDEFAULT_SKETCHES=grids, 3d-cloud ,,flock\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("environment should win over .env, got port %q", cfg.Port)
	}
	if cfg.PresetDir != "/tmp/p" {
		t.Fatalf("PresetDir: %q", cfg.PresetDir)
	}
	if want := []string{"grids", "3d-cloud", "flock"}; !reflect.DeepEqual(cfg.DefaultSketches, want) {
		t.Fatalf("DefaultSketches: %v", cfg.DefaultSketches)
	}
}
