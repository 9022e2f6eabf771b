// Package runs drives the export run pipeline: extraction, conversion,
// enrichment, tiling, packaging, and the run state machine.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/footprint-labs/footprint-go/internal/convert"
	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/metrics"
	"github.com/footprint-labs/footprint-go/internal/packaging"
	"github.com/footprint-labs/footprint-go/internal/population"
	"github.com/footprint-labs/footprint-go/internal/queue"
	"github.com/footprint-labs/footprint-go/internal/repo"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
)

// ErrRunInFlight is returned by Trigger when the export already has a
// non-terminal run.
var ErrRunInFlight = errors.New("export already has a run in flight")

const (
	noBuildingsSummary = "No buildings found in the area of interest"

	archiveContentType = "application/zip"
	tilesContentType   = "application/vnd.pmtiles"
)

// Extractor pulls footprints for one source.
type Extractor interface {
	Extract(ctx context.Context, aoi domain.AOI, src domain.Source, rawConfig map[string]any) (*domain.FeatureCollection, *domain.SourceResult, error)
}

// Converter writes a collection to disk in one format.
type Converter interface {
	Convert(ctx context.Context, fc *domain.FeatureCollection, format domain.Format, baseName, dir string) (convert.Artifact, error)
}

// Enricher estimates AOI population, best effort.
type Enricher interface {
	Estimate(ctx context.Context, aoi domain.AOI) *domain.PopulationStats
}

// TileBuilder turns GeoJSON inputs into one PMTiles set.
type TileBuilder interface {
	Available(ctx context.Context) bool
	Build(ctx context.Context, inputPaths []string, runID, dir string) (string, error)
}

// Auditor records state transitions, best effort.
type Auditor interface {
	Record(ctx context.Context, action, resourceType, resourceID, taskID string, payload any)
}

// Buckets names the object storage destinations for run artifacts.
type Buckets struct {
	Archives string
	Tiles    string
}

// Coordinator owns run status transitions and executes the pipeline. One
// Process call handles one run end to end; per-stage failures are absorbed
// into the results payload, orchestration faults fail the run but never
// the worker.
type Coordinator struct {
	exports   repo.ExportRepository
	runs      repo.RunRepository
	extractor Extractor
	converter Converter
	enricher  Enricher
	tiles     TileBuilder
	store     objectstore.Store
	queue     queue.TaskQueue
	audit     Auditor
	recorder  *metrics.Recorder
	buckets   Buckets
	logger    *slog.Logger

	notifyDelay time.Duration
	now         func() time.Time
}

type Deps struct {
	Exports   repo.ExportRepository
	Runs      repo.RunRepository
	Extractor Extractor
	Converter Converter
	Enricher  Enricher
	Tiles     TileBuilder
	Store     objectstore.Store
	Queue     queue.TaskQueue
	Audit     Auditor
	Metrics   *metrics.Recorder
	Buckets   Buckets
	Logger    *slog.Logger

	// NotifyDelay decouples notification delivery from run completion.
	NotifyDelay time.Duration
}

func NewCoordinator(d Deps) (*Coordinator, error) {
	switch {
	case d.Exports == nil:
		return nil, errors.New("export repository is required")
	case d.Runs == nil:
		return nil, errors.New("run repository is required")
	case d.Extractor == nil:
		return nil, errors.New("extractor is required")
	case d.Converter == nil:
		return nil, errors.New("converter is required")
	case d.Store == nil:
		return nil, errors.New("object store is required")
	case d.Queue == nil:
		return nil, errors.New("task queue is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NotifyDelay == 0 {
		d.NotifyDelay = 30 * time.Second
	}
	return &Coordinator{
		exports:     d.Exports,
		runs:        d.Runs,
		extractor:   d.Extractor,
		converter:   d.Converter,
		enricher:    d.Enricher,
		tiles:       d.Tiles,
		store:       d.Store,
		queue:       d.Queue,
		audit:       d.Audit,
		recorder:    d.Metrics,
		buckets:     d.Buckets,
		logger:      d.Logger,
		notifyDelay: d.NotifyDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Trigger creates a new run for an export, schedules it, and marks it
// queued. Re-running the same export produces independent run records;
// only one may be in flight at a time.
func (c *Coordinator) Trigger(ctx context.Context, exportID string) (domain.ExportRun, error) {
	export, err := c.exports.GetExport(ctx, exportID)
	if err != nil {
		return domain.ExportRun{}, err
	}
	active, err := c.exports.HasActiveRun(ctx, export.ID)
	if err != nil {
		return domain.ExportRun{}, err
	}
	if active {
		return domain.ExportRun{}, ErrRunInFlight
	}

	now := c.now()
	run := domain.ExportRun{
		ID:        uuid.NewString(),
		ExportID:  export.ID,
		Status:    domain.RunStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.runs.CreateRun(ctx, run); err != nil {
		return domain.ExportRun{}, err
	}

	taskID, err := c.queue.ScheduleRun(ctx, run.ID, 0)
	if err != nil {
		_ = c.runs.Fail(ctx, run.ID, fmt.Sprintf("schedule run: %v", err), c.now())
		return domain.ExportRun{}, fmt.Errorf("schedule run: %w", err)
	}
	if err := c.runs.SetTaskID(ctx, run.ID, taskID); err != nil {
		return domain.ExportRun{}, err
	}
	if err := c.runs.MarkQueued(ctx, run.ID); err != nil {
		return domain.ExportRun{}, err
	}
	c.record(ctx, "run.queued", run.ID, taskID, map[string]any{"export_id": export.ID})

	run.Status = domain.RunStateQueued
	run.TaskID = taskID
	return run, nil
}

// Process executes one delivered run. It returns an error only for faults
// worth redelivering (lookup failures before any state change); a failed
// run is a terminal outcome, not a consumer error.
func (c *Coordinator) Process(ctx context.Context, runID string) error {
	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	export, err := c.exports.GetExport(ctx, run.ExportID)
	if err != nil {
		return fmt.Errorf("load export %s: %w", run.ExportID, err)
	}

	startedAt := c.now()
	if err := c.runs.MarkProcessing(ctx, runID, startedAt); err != nil {
		if errors.Is(err, repo.ErrStaleTransition) {
			// Already picked up, or finished. Single delivery makes this
			// rare; dropping the duplicate is the correct outcome.
			c.logger.Warn("run not in queued state, skipping", "run_id", runID, "status", run.Status)
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	c.record(ctx, "run.processing", runID, run.TaskID, nil)
	c.logger.Info("run started", "run_id", runID, "export_id", export.ID, "sources", len(export.Sources))

	results, archiveKey, tilesKey, procErr := c.execute(ctx, run, export)
	completedAt := c.now()
	if procErr != nil {
		c.fail(ctx, runID, run.TaskID, procErr, startedAt, completedAt)
		return nil
	}

	if err := c.runs.Complete(ctx, runID, results, archiveKey, tilesKey, completedAt); err != nil {
		c.fail(ctx, runID, run.TaskID, fmt.Errorf("persist completion: %w", err), startedAt, c.now())
		return nil
	}
	if c.recorder != nil {
		c.recorder.RunFinished(domain.RunStateCompleted, completedAt.Sub(startedAt).Seconds(), results.TotalBuildingCount)
	}
	c.record(ctx, "run.completed", runID, run.TaskID, map[string]any{
		"total_building_count": results.TotalBuildingCount,
		"archive_key":          archiveKey,
	})
	c.logger.Info("run completed", "run_id", runID,
		"buildings", results.TotalBuildingCount, "archive_key", archiveKey)

	if export.NotifyEmail != "" {
		if _, err := c.queue.ScheduleNotification(ctx, runID, c.notifyDelay); err != nil {
			c.logger.Warn("completion notification not scheduled", "run_id", runID, "error", err)
		}
	}
	return nil
}

type sourceOutcome struct {
	src    domain.Source
	fc     *domain.FeatureCollection
	result *domain.SourceResult
}

// execute runs the pipeline stages. A returned error is an orchestration
// fault; per-stage failures land in the results payload instead.
func (c *Coordinator) execute(ctx context.Context, run domain.ExportRun, export domain.Export) (results *domain.RunResults, archiveKey, tilesKey string, err error) {
	stagingDir, err := os.MkdirTemp("", "run-"+run.ID+"-*")
	if err != nil {
		return nil, "", "", fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stagingDir); rmErr != nil {
			c.logger.Warn("staging dir cleanup failed", "dir", stagingDir, "error", rmErr)
		}
	}()

	outcomes := c.extractAll(ctx, export)

	results = domain.NewRunResults()
	total := 0
	for _, o := range outcomes {
		results.Sources[string(o.src)] = o.result
		total += o.result.BuildingCount
	}
	results.TotalBuildingCount = total

	if total == 0 {
		results.Message = noBuildingsSummary
		return results, "", "", nil
	}

	members, geojsonBySource := c.convertAll(ctx, export, outcomes, stagingDir)

	if pop := c.enrich(ctx, export.AOI); pop != nil && pop.PopulationEstimate > 0 {
		results.Population = pop
		for _, o := range outcomes {
			if o.result.BuildingCount > 0 {
				o.result.Coverage = population.Coverage(o.result.BuildingCount, pop.PopulationEstimate)
			}
		}
	}

	tilesKey = c.buildTiles(ctx, run.ID, outcomes, geojsonBySource, stagingDir, results, &members)

	if len(members) == 0 {
		// Every conversion failed; nothing to package. The per-format
		// errors already tell the story.
		return results, "", "", nil
	}

	archivePath := filepath.Join(stagingDir, run.ID+".zip")
	if _, err := packaging.BuildArchive(members, archivePath); err != nil {
		return nil, "", "", fmt.Errorf("package archive: %w", err)
	}
	archiveKey = run.ID + ".zip"
	if _, err := c.store.PutFile(ctx, c.buckets.Archives, archiveKey, archivePath, archiveContentType); err != nil {
		return nil, "", "", fmt.Errorf("store archive: %w", err)
	}
	results.ArchiveFile = archiveKey

	return results, archiveKey, tilesKey, nil
}

// extractAll fans out over sources in parallel and aggregates into
// configuration order. A source failure is absorbed, never cancels
// siblings.
func (c *Coordinator) extractAll(ctx context.Context, export domain.Export) []*sourceOutcome {
	outcomes := make([]*sourceOutcome, len(export.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range export.Sources {
		i, src := i, src
		g.Go(func() error {
			fc, result, err := c.extractor.Extract(gctx, export.AOI, src, export.ConfigFor(src))
			if err != nil {
				c.logger.Warn("source extraction failed", "source", src, "error", err)
				outcomes[i] = &sourceOutcome{src: src, result: &domain.SourceResult{Error: err.Error()}}
				return nil
			}
			outcomes[i] = &sourceOutcome{src: src, fc: fc, result: result}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// convertAll writes every requested format for every source that yielded
// data. Failures are recorded per (source, format) pair.
func (c *Coordinator) convertAll(ctx context.Context, export domain.Export, outcomes []*sourceOutcome, stagingDir string) ([]packaging.Member, map[domain.Source]string) {
	var members []packaging.Member
	geojsonBySource := map[domain.Source]string{}
	formats := export.ConversionFormats()

	for _, o := range outcomes {
		if o.fc == nil || o.fc.IsEmpty() {
			continue
		}
		o.result.Formats = make(map[string]*domain.FormatResult, len(formats))
		for _, format := range formats {
			baseName := fmt.Sprintf("%s_%s", o.src, format)
			art, err := c.converter.Convert(ctx, o.fc, format, baseName, stagingDir)
			if err != nil {
				c.logger.Warn("format conversion failed", "source", o.src, "format", format, "error", err)
				o.result.Formats[string(format)] = &domain.FormatResult{Error: err.Error()}
				continue
			}
			o.result.Formats[string(format)] = &domain.FormatResult{
				File:          filepath.Base(art.Path),
				SizeBytes:     art.SizeBytes,
				BuildingCount: art.BuildingCount,
			}
			members = append(members, packaging.Member{Name: filepath.Base(art.Path), Path: art.Path})
			if format == domain.FormatGeoJSON {
				geojsonBySource[o.src] = art.Path
			}
		}
	}
	return members, geojsonBySource
}

func (c *Coordinator) enrich(ctx context.Context, aoi domain.AOI) *domain.PopulationStats {
	if c.enricher == nil {
		return nil
	}
	return c.enricher.Estimate(ctx, aoi)
}

// buildTiles tiles all sources into one PMTiles set, reusing converted
// GeoJSON artifacts and serializing retained features for the rest. A
// tiling failure annotates the results and nothing more.
func (c *Coordinator) buildTiles(ctx context.Context, runID string, outcomes []*sourceOutcome, geojsonBySource map[domain.Source]string, stagingDir string, results *domain.RunResults, members *[]packaging.Member) string {
	if c.tiles == nil || !c.tiles.Available(ctx) {
		return ""
	}

	var inputs []string
	for _, o := range outcomes {
		if o.fc == nil || o.fc.IsEmpty() {
			continue
		}
		if path, ok := geojsonBySource[o.src]; ok {
			inputs = append(inputs, path)
			continue
		}
		path := filepath.Join(stagingDir, fmt.Sprintf("%s_tiles.geojsonl", o.src))
		if err := convert.WriteGeoJSONLFile(o.fc, path); err != nil {
			c.logger.Warn("tile input serialization failed", "source", o.src, "error", err)
			continue
		}
		inputs = append(inputs, path)
	}
	if len(inputs) == 0 {
		return ""
	}

	tilesPath, err := c.tiles.Build(ctx, inputs, runID, stagingDir)
	if err != nil {
		results.TilesError = err.Error()
		c.logger.Warn("tiling failed", "run_id", runID, "error", err)
		return ""
	}

	key := runID + ".pmtiles"
	if _, err := c.store.PutFile(ctx, c.buckets.Tiles, key, tilesPath, tilesContentType); err != nil {
		results.TilesError = fmt.Sprintf("store tiles: %v", err)
		return ""
	}
	results.TilesGenerated = true
	*members = append(*members, packaging.Member{Name: packaging.TilesMemberName, Path: tilesPath})
	return key
}

// fail moves the run to its failed terminal state. The transition itself
// must succeed even when the pipeline left partial artifacts behind.
func (c *Coordinator) fail(ctx context.Context, runID, taskID string, cause error, startedAt, completedAt time.Time) {
	c.logger.Error("run failed", "run_id", runID, "error", cause)
	if err := c.runs.Fail(ctx, runID, cause.Error(), completedAt); err != nil {
		c.logger.Error("failed-state transition did not persist", "run_id", runID, "error", err)
		return
	}
	if c.recorder != nil {
		c.recorder.RunFinished(domain.RunStateFailed, completedAt.Sub(startedAt).Seconds(), 0)
	}
	c.record(ctx, "run.failed", runID, taskID, map[string]any{"error": cause.Error()})
}

func (c *Coordinator) record(ctx context.Context, action, runID, taskID string, payload any) {
	if c.audit == nil {
		return
	}
	c.audit.Record(ctx, action, "export_run", runID, taskID, payload)
}
