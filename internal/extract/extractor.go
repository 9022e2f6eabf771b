package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/sources"
)

// Extractor pulls building footprints for one AOI from one source at a
// time. Provider calls are network- or disk-bound and run under a bounded
// timeout; a failure is scoped to its source and never aborts siblings.
type Extractor struct {
	registry *sources.Registry
	logger   *slog.Logger
	timeout  time.Duration
}

func NewExtractor(registry *sources.Registry, logger *slog.Logger, timeout time.Duration) (*Extractor, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Extractor{registry: registry, logger: logger, timeout: timeout}, nil
}

// Extract fetches buildings for one source. An empty result is a valid
// outcome, reported through the stats message rather than an error. The
// returned collection is nil exactly when an error occurred.
func (e *Extractor) Extract(ctx context.Context, aoi domain.AOI, src domain.Source, rawConfig map[string]any) (*domain.FeatureCollection, *domain.SourceResult, error) {
	cfg, err := sources.ParseConfig(src, rawConfig)
	if err != nil {
		return nil, nil, err
	}
	provider, err := e.registry.Provider(src)
	if err != nil {
		return nil, nil, err
	}

	aoiPath, err := stageAOIFile(aoi)
	if err != nil {
		return nil, nil, fmt.Errorf("stage aoi file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(aoiPath); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Warn("aoi temp file cleanup failed", "path", aoiPath, "error", rmErr)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Info("extracting buildings", "source", src)
	fc, err := provider.Fetch(fetchCtx, sources.FetchRequest{AOI: aoi, AOIPath: aoiPath, Config: cfg})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch from %s: %w", src, err)
	}

	result := GenerateStats(fc, src)
	return fc, result, nil
}

// stageAOIFile writes the AOI to a temp GeoJSON file for providers and
// tools that read geometry from disk. The caller removes it.
func stageAOIFile(aoi domain.AOI) (string, error) {
	blob, err := aoi.FeatureCollectionJSON()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "aoi-*.geojson")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
