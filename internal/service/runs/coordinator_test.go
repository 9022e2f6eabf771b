package runs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footprint-labs/footprint-go/internal/convert"
	"github.com/footprint-labs/footprint-go/internal/domain"
)

func testAOI() domain.AOI {
	return domain.AOI{Polygon: orb.Polygon{{
		{7.40, 46.94}, {7.46, 46.94}, {7.46, 46.98}, {7.40, 46.98}, {7.40, 46.94},
	}}}
}

func buildings(n int) *domain.FeatureCollection {
	fc := &domain.FeatureCollection{}
	for i := 0; i < n; i++ {
		fc.Features = append(fc.Features, domain.BuildingFeature{
			Geometry: orb.Polygon{{
				{7.41, 46.95}, {7.4104, 46.95}, {7.4104, 46.9503}, {7.41, 46.9503}, {7.41, 46.95},
			}},
			Properties: map[string]any{"building": "house"},
		})
	}
	return fc
}

func yields(n int) func() (*domain.FeatureCollection, *domain.SourceResult, error) {
	return func() (*domain.FeatureCollection, *domain.SourceResult, error) {
		fc := buildings(n)
		result := &domain.SourceResult{BuildingCount: n}
		if n == 0 {
			result.Message = "No buildings found"
		}
		return fc, result, nil
	}
}

func fails(msg string) func() (*domain.FeatureCollection, *domain.SourceResult, error) {
	return func() (*domain.FeatureCollection, *domain.SourceResult, error) {
		return nil, nil, errors.New(msg)
	}
}

type fixture struct {
	exports   *stubExports
	runs      *stubRuns
	queue     *stubQueue
	store     *stubStore
	tiles     *stubTiles
	extractor *stubExtractor
	enricher  *stubEnricher
	coord     *Coordinator
}

func newFixture(t *testing.T, export domain.Export) *fixture {
	t.Helper()
	f := &fixture{
		exports:   &stubExports{exports: map[string]domain.Export{export.ID: export}},
		runs:      newStubRuns(),
		queue:     &stubQueue{},
		store:     newStubStore(),
		tiles:     &stubTiles{},
		extractor: &stubExtractor{fetch: map[domain.Source]func() (*domain.FeatureCollection, *domain.SourceResult, error){}},
		enricher:  &stubEnricher{},
	}
	coord, err := NewCoordinator(Deps{
		Exports:   f.exports,
		Runs:      f.runs,
		Extractor: f.extractor,
		Converter: convert.NewConverter(copyEngine{}, nil),
		Enricher:  f.enricher,
		Tiles:     f.tiles,
		Store:     f.store,
		Queue:     f.queue,
		Buckets:   Buckets{Archives: "archives", Tiles: "tiles"},
	})
	require.NoError(t, err)
	f.coord = coord
	return f
}

// copyEngine stands in for the external translation tool.
type copyEngine struct{}

func (copyEngine) Available() bool { return true }

func (copyEngine) Translate(ctx context.Context, srcPath, dstPath string, format domain.Format) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return os.WriteFile(dstPath, data, 0o644)
}

func testExport(sources []domain.Source, formats []domain.Format) domain.Export {
	return domain.Export{
		ID:      "exp-1",
		OwnerID: "user-1",
		Name:    "Bern city centre",
		AOI:     testAOI(),
		Sources: sources,
		Formats: formats,
	}
}

// seedQueuedRun places a run where a worker would find it.
func (f *fixture) seedQueuedRun(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.runs.CreateRun(context.Background(), domain.ExportRun{
		ID:       id,
		ExportID: "exp-1",
		Status:   domain.RunStateQueued,
	}))
}

func (f *fixture) archive(t *testing.T, key string) map[string][]byte {
	t.Helper()
	data, ok := f.store.objects["archives/"+key]
	require.True(t, ok, "archive %s not uploaded", key)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		buf := new(bytes.Buffer)
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[zf.Name] = buf.Bytes()
	}
	return out
}

func TestProcess_SingleSourceGeoJSON(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(10)
	f.seedQueuedRun(t, "run-1")

	require.NoError(t, f.coord.Process(context.Background(), "run-1"))

	run, err := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	require.NotNil(t, run.Results)
	assert.Equal(t, 10, run.Results.Sources["osm"].BuildingCount)
	assert.Equal(t, 10, run.Results.TotalBuildingCount)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)

	contents := f.archive(t, run.ArchiveKey)
	assert.Contains(t, contents, "osm_geojson.geojson")
}

func TestProcess_SourceErrorDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, testExport(
		[]domain.Source{domain.SourceGoogle, domain.SourceMicrosoft},
		[]domain.Format{domain.FormatGeoParquet},
	))
	f.extractor.fetch[domain.SourceGoogle] = fails("provider exploded")
	f.extractor.fetch[domain.SourceMicrosoft] = yields(5)
	f.seedQueuedRun(t, "run-2")

	require.NoError(t, f.coord.Process(context.Background(), "run-2"))

	run, _ := f.runs.GetRun(context.Background(), "run-2")
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	assert.Contains(t, run.Results.Sources["google"].Error, "provider exploded")
	assert.Equal(t, 0, run.Results.Sources["google"].BuildingCount)
	assert.Equal(t, 5, run.Results.Sources["microsoft"].BuildingCount)
	assert.Equal(t, 5, run.Results.TotalBuildingCount)

	contents := f.archive(t, run.ArchiveKey)
	assert.Len(t, contents, 1)
	assert.Contains(t, contents, "microsoft_geoparquet.parquet")
}

func TestProcess_EmptyResultsCompleteWithoutArchive(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(0)
	f.seedQueuedRun(t, "run-3")

	require.NoError(t, f.coord.Process(context.Background(), "run-3"))

	run, _ := f.runs.GetRun(context.Background(), "run-3")
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	assert.Equal(t, 0, run.Results.TotalBuildingCount)
	assert.Equal(t, noBuildingsSummary, run.Results.Message)
	assert.Empty(t, run.ArchiveKey)
	assert.Empty(t, f.store.objects)
}

func TestProcess_TilesUnavailable(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	f.tiles.available = false
	f.seedQueuedRun(t, "run-4")

	require.NoError(t, f.coord.Process(context.Background(), "run-4"))

	run, _ := f.runs.GetRun(context.Background(), "run-4")
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	assert.False(t, run.Results.TilesGenerated)
	assert.Empty(t, run.TilesKey)
}

func TestProcess_TilesGenerated(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	f.tiles.available = true
	f.seedQueuedRun(t, "run-5")

	require.NoError(t, f.coord.Process(context.Background(), "run-5"))

	run, _ := f.runs.GetRun(context.Background(), "run-5")
	assert.True(t, run.Results.TilesGenerated)
	assert.Equal(t, "run-5.pmtiles", run.TilesKey)
	assert.Contains(t, f.store.objects, "tiles/run-5.pmtiles")

	contents := f.archive(t, run.ArchiveKey)
	assert.Contains(t, contents, "vector_tiles.pmtiles")
	// The already-converted geojson artifact is reused as tile input.
	require.Len(t, f.tiles.inputs, 1)
	assert.Contains(t, f.tiles.inputs[0], "osm_geojson.geojson")
}

func TestProcess_TilesInputFromRetainedFeatures(t *testing.T) {
	// No geojson among the formats: tile input must be serialized from the
	// retained in-memory features, not re-fetched.
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoPackage}))
	f.extractor.fetch[domain.SourceOSM] = yields(2)
	f.tiles.available = true
	f.seedQueuedRun(t, "run-6")

	require.NoError(t, f.coord.Process(context.Background(), "run-6"))

	run, _ := f.runs.GetRun(context.Background(), "run-6")
	assert.True(t, run.Results.TilesGenerated)
	require.Len(t, f.tiles.inputs, 1)
	assert.Contains(t, f.tiles.inputs[0], "osm_tiles.geojsonl")
}

func TestProcess_TilingFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	f.tiles.available = true
	f.tiles.buildErr = errors.New("tippecanoe segfault")
	f.seedQueuedRun(t, "run-7")

	require.NoError(t, f.coord.Process(context.Background(), "run-7"))

	run, _ := f.runs.GetRun(context.Background(), "run-7")
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	assert.False(t, run.Results.TilesGenerated)
	assert.Contains(t, run.Results.TilesError, "tippecanoe segfault")
	assert.NotEmpty(t, run.ArchiveKey)
}

func TestProcess_EnrichmentFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	f.enricher.stats = nil
	f.seedQueuedRun(t, "run-8")

	require.NoError(t, f.coord.Process(context.Background(), "run-8"))

	run, _ := f.runs.GetRun(context.Background(), "run-8")
	assert.Equal(t, domain.RunStateCompleted, run.Status)
	assert.Nil(t, run.Results.Population)
}

func TestProcess_EnrichmentAndCoverage(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(30)
	f.enricher.stats = &domain.PopulationStats{PopulationEstimate: 100, Source: "WorldPop", Year: 2020}
	f.seedQueuedRun(t, "run-9")

	require.NoError(t, f.coord.Process(context.Background(), "run-9"))

	run, _ := f.runs.GetRun(context.Background(), "run-9")
	require.NotNil(t, run.Results.Population)
	assert.Equal(t, int64(100), run.Results.Population.PopulationEstimate)
	cov := run.Results.Sources["osm"].Coverage
	require.NotNil(t, cov)
	assert.InDelta(t, 0.3, cov.BuildingsPerCapita, 1e-9)
	assert.Equal(t, "moderate", cov.CoverageLevel)
}

func TestProcess_ReentrancyGuard(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	require.NoError(t, f.runs.CreateRun(context.Background(), domain.ExportRun{
		ID:       "run-10",
		ExportID: "exp-1",
		Status:   domain.RunStateProcessing,
	}))

	require.NoError(t, f.coord.Process(context.Background(), "run-10"))

	run, _ := f.runs.GetRun(context.Background(), "run-10")
	assert.Equal(t, domain.RunStateProcessing, run.Status, "a duplicate delivery must not touch the run")
	assert.Empty(t, f.store.objects)
}

func TestProcess_OrchestrationFaultFailsRun(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(3)
	f.store.putErr = errors.New("bucket gone")
	f.seedQueuedRun(t, "run-11")

	require.NoError(t, f.coord.Process(context.Background(), "run-11"))

	run, _ := f.runs.GetRun(context.Background(), "run-11")
	assert.Equal(t, domain.RunStateFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "bucket gone")
	assert.NotNil(t, run.CompletedAt)
}

func TestProcess_NotificationScheduling(t *testing.T) {
	export := testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON})
	export.NotifyEmail = "owner@example.org"
	f := newFixture(t, export)
	f.extractor.fetch[domain.SourceOSM] = yields(1)
	f.seedQueuedRun(t, "run-12")

	require.NoError(t, f.coord.Process(context.Background(), "run-12"))

	require.Len(t, f.queue.notifications, 1)
	assert.Equal(t, "run-12", f.queue.notifications[0].runID)
	assert.Equal(t, 30*time.Second, f.queue.notifications[0].delay)
}

func TestProcess_NoNotificationWithoutAddress(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.extractor.fetch[domain.SourceOSM] = yields(1)
	f.seedQueuedRun(t, "run-13")

	require.NoError(t, f.coord.Process(context.Background(), "run-13"))
	assert.Empty(t, f.queue.notifications)
}

func TestTrigger(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))

	run, err := f.coord.Trigger(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateQueued, run.Status)
	assert.Equal(t, "task-"+run.ID, run.TaskID)
	require.Len(t, f.queue.runsScheduled, 1)

	// A second trigger is independent: a fresh run record.
	second, err := f.coord.Trigger(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, second.ID)

	// Export configuration is untouched by triggering.
	exp, err := f.exports.GetExport(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{domain.SourceOSM}, exp.Sources)
}

func TestTrigger_RefusesConcurrentRun(t *testing.T) {
	f := newFixture(t, testExport([]domain.Source{domain.SourceOSM}, []domain.Format{domain.FormatGeoJSON}))
	f.exports.active = true

	_, err := f.coord.Trigger(context.Background(), "exp-1")
	assert.ErrorIs(t, err, ErrRunInFlight)
}
