// Package config reads process settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	// PresetDir holds one <sketch>-presets.json file per sketch.
	PresetDir string
	// SketchCommand is run with `sh -c` for each sketch host.
	SketchCommand string
	// StaticDir, if set, is served as the browser UI.
	StaticDir string
	// DefaultSketches are opened at startup so they show up in listings.
	DefaultSketches []string
}

// Load reads envFile (if it exists) and then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Port:          getenv("PORT", "8080"),
		PresetDir:     getenv("PRESET_DIR", "/data/presets"),
		SketchCommand: getenv("SKETCH_COMMAND", "cat"),
		StaticDir:     os.Getenv("STATIC_DIR"),
	}
	for _, name := range strings.Split(os.Getenv("DEFAULT_SKETCHES"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.DefaultSketches = append(cfg.DefaultSketches, name)
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
