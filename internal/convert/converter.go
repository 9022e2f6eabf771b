// Package convert turns extracted building collections into the delivery
// formats a run requests. GeoJSON is encoded in-process; columnar and
// container formats go through a pluggable translation engine.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// ErrNothingToSave marks an empty collection. Callers record it as a
// per-format message, not a run failure.
var ErrNothingToSave = errors.New("no building data to save")

// Engine translates a staged GeoJSON file into a non-native format.
type Engine interface {
	Available() bool
	Translate(ctx context.Context, srcPath, dstPath string, format domain.Format) error
}

// Artifact describes one produced output file.
type Artifact struct {
	Path          string
	Format        domain.Format
	SizeBytes     int64
	BuildingCount int
}

// Converter writes a feature collection to disk in a requested format.
type Converter struct {
	engine Engine
	logger *slog.Logger
}

func NewConverter(engine Engine, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{engine: engine, logger: logger}
}

// Convert writes fc as one file under dir, named baseName plus the format
// extension. Empty collections return ErrNothingToSave without touching
// disk.
func (c *Converter) Convert(ctx context.Context, fc *domain.FeatureCollection, format domain.Format, baseName, dir string) (Artifact, error) {
	if fc == nil || fc.IsEmpty() {
		return Artifact{}, ErrNothingToSave
	}

	dstPath := filepath.Join(dir, baseName+format.Ext())

	switch format {
	case domain.FormatGeoJSON:
		if err := WriteGeoJSONFile(fc, dstPath); err != nil {
			return Artifact{}, err
		}
	case domain.FormatGeoParquet, domain.FormatShapefile, domain.FormatGeoPackage:
		if err := c.translate(ctx, fc, format, dstPath, dir); err != nil {
			return Artifact{}, err
		}
	default:
		return Artifact{}, fmt.Errorf("unsupported output format %q", format)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat output: %w", err)
	}
	return Artifact{
		Path:          dstPath,
		Format:        format,
		SizeBytes:     info.Size(),
		BuildingCount: fc.Count(),
	}, nil
}

func (c *Converter) translate(ctx context.Context, fc *domain.FeatureCollection, format domain.Format, dstPath, dir string) error {
	if c.engine == nil || !c.engine.Available() {
		return fmt.Errorf("conversion engine unavailable for format %q", format)
	}

	staged, err := os.CreateTemp(dir, "staging-*.geojson")
	if err != nil {
		return fmt.Errorf("stage geojson: %w", err)
	}
	stagedPath := staged.Name()
	_ = staged.Close()
	defer func() {
		if rmErr := os.Remove(stagedPath); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Warn("staging file cleanup failed", "path", stagedPath, "error", rmErr)
		}
	}()

	if err := WriteGeoJSONFile(fc, stagedPath); err != nil {
		return err
	}
	return c.engine.Translate(ctx, stagedPath, dstPath, format)
}
