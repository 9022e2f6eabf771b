// Package tiles builds PMTiles vector tile sets from GeoJSON inputs by
// shelling out to tippecanoe. Tiling is optional for a run: if the binary
// is missing the run completes without tiles.
package tiles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/footprint-labs/footprint-go/internal/platform/env"
)

const (
	layerName   = "buildings"
	minimumZoom = "5"
	maximumZoom = "18"
)

// Config carries the tiling tool settings.
type Config struct {
	Binary  string
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("FOOTPRINT_TIPPECANOE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Binary:  env.String("FOOTPRINT_TIPPECANOE_BIN", "tippecanoe"),
		Timeout: timeout,
	}, nil
}

// Builder runs tippecanoe against one or more GeoJSON files.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if cfg.Binary == "" {
		cfg.Binary = "tippecanoe"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Available probes the binary. Callers skip tiling, without failing the
// run, when this returns false.
func (b *Builder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, b.cfg.Binary, "--version").Run(); err != nil {
		b.logger.Info("tiling tool unavailable", "binary", b.cfg.Binary, "error", err)
		return false
	}
	return true
}

// Build tiles the given GeoJSON inputs into dir/<runID>.pmtiles and
// returns the output path.
func (b *Builder) Build(ctx context.Context, inputPaths []string, runID, dir string) (string, error) {
	if len(inputPaths) == 0 {
		return "", fmt.Errorf("no geojson inputs to tile")
	}

	outPath := filepath.Join(dir, runID+".pmtiles")
	args := []string{
		"--output", outPath,
		"--layer", layerName,
		"--minimum-zoom", minimumZoom,
		"--maximum-zoom", maximumZoom,
		"--drop-densest-as-needed",
		"--extend-zooms-if-still-dropping",
		"--force",
	}
	args = append(args, inputPaths...)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	b.logger.Info("building vector tiles", "run_id", runID, "inputs", len(inputPaths))
	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		snippet := strings.TrimSpace(string(out))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("tippecanoe failed: %w: %s", err, snippet)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("tiling produced no output at %s", outPath)
	}
	return outPath, nil
}
