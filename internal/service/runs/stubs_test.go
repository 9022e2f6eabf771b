package runs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/queue"
	"github.com/footprint-labs/footprint-go/internal/repo"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
)

type stubExports struct {
	exports map[string]domain.Export
	active  bool
}

func (s *stubExports) CreateExport(ctx context.Context, e domain.Export) error {
	s.exports[e.ID] = e
	return nil
}

func (s *stubExports) GetExport(ctx context.Context, id string) (domain.Export, error) {
	e, ok := s.exports[id]
	if !ok {
		return domain.Export{}, repo.ErrNotFound
	}
	return e, nil
}

func (s *stubExports) ListExports(ctx context.Context, f repo.ExportFilter) ([]domain.Export, error) {
	var out []domain.Export
	for _, e := range s.exports {
		out = append(out, e)
	}
	return out, nil
}

func (s *stubExports) HasActiveRun(ctx context.Context, exportID string) (bool, error) {
	return s.active, nil
}

type stubRuns struct {
	mu   sync.Mutex
	runs map[string]*domain.ExportRun

	failErr error
}

func newStubRuns() *stubRuns {
	return &stubRuns{runs: map[string]*domain.ExportRun{}}
}

func (s *stubRuns) CreateRun(ctx context.Context, run domain.ExportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := run
	s.runs[run.ID] = &r
	return nil
}

func (s *stubRuns) GetRun(ctx context.Context, id string) (domain.ExportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return domain.ExportRun{}, repo.ErrNotFound
	}
	return *r, nil
}

func (s *stubRuns) ListRuns(ctx context.Context, f repo.RunFilter) ([]domain.ExportRun, error) {
	return nil, nil
}

func (s *stubRuns) SetTaskID(ctx context.Context, id, taskID string) error {
	return s.update(id, func(r *domain.ExportRun) error {
		r.TaskID = taskID
		return nil
	})
}

func (s *stubRuns) MarkQueued(ctx context.Context, id string) error {
	return s.transition(id, domain.RunStatePending, domain.RunStateQueued, nil)
}

func (s *stubRuns) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return s.transition(id, domain.RunStateQueued, domain.RunStateProcessing, func(r *domain.ExportRun) {
		t := startedAt
		r.StartedAt = &t
	})
}

func (s *stubRuns) Complete(ctx context.Context, id string, results *domain.RunResults, archiveKey, tilesKey string, completedAt time.Time) error {
	return s.transition(id, domain.RunStateProcessing, domain.RunStateCompleted, func(r *domain.ExportRun) {
		r.Results = results
		r.ArchiveKey = archiveKey
		r.TilesKey = tilesKey
		t := completedAt
		r.CompletedAt = &t
	})
}

func (s *stubRuns) Fail(ctx context.Context, id string, errorMessage string, completedAt time.Time) error {
	if s.failErr != nil {
		return s.failErr
	}
	return s.update(id, func(r *domain.ExportRun) error {
		if r.Status.IsTerminal() {
			return repo.ErrStaleTransition
		}
		r.Status = domain.RunStateFailed
		r.ErrorMessage = errorMessage
		t := completedAt
		r.CompletedAt = &t
		return nil
	})
}

func (s *stubRuns) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExportRun, error) {
	return nil, nil
}

func (s *stubRuns) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}

func (s *stubRuns) transition(id string, from, to domain.RunState, apply func(*domain.ExportRun)) error {
	return s.update(id, func(r *domain.ExportRun) error {
		if r.Status != from {
			return repo.ErrStaleTransition
		}
		r.Status = to
		if apply != nil {
			apply(r)
		}
		return nil
	})
}

func (s *stubRuns) update(id string, apply func(*domain.ExportRun) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	return apply(r)
}

type stubExtractor struct {
	fetch map[domain.Source]func() (*domain.FeatureCollection, *domain.SourceResult, error)
}

func (s *stubExtractor) Extract(ctx context.Context, aoi domain.AOI, src domain.Source, raw map[string]any) (*domain.FeatureCollection, *domain.SourceResult, error) {
	fn, ok := s.fetch[src]
	if !ok {
		return nil, nil, fmt.Errorf("unknown source %q", src)
	}
	return fn()
}

type stubEnricher struct {
	stats *domain.PopulationStats
}

func (s *stubEnricher) Estimate(ctx context.Context, aoi domain.AOI) *domain.PopulationStats {
	return s.stats
}

type stubTiles struct {
	available bool
	buildErr  error
	inputs    []string
}

func (s *stubTiles) Available(ctx context.Context) bool { return s.available }

func (s *stubTiles) Build(ctx context.Context, inputPaths []string, runID, dir string) (string, error) {
	s.inputs = inputPaths
	if s.buildErr != nil {
		return "", s.buildErr
	}
	path := dir + "/" + runID + ".pmtiles"
	if err := os.WriteFile(path, []byte("pmtiles"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// stubStore keeps uploaded object bytes in memory so tests can inspect
// archives after the staging directory is gone.
type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newStubStore() *stubStore {
	return &stubStore{objects: map[string][]byte{}}
}

func (s *stubStore) key(bucket, key string) string { return bucket + "/" + key }

func (s *stubStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[s.key(bucket, key)] = data
	return nil
}

func (s *stubStore) PutFile(ctx context.Context, bucket, key, path, contentType string) (int64, error) {
	if s.putErr != nil {
		return 0, s.putErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[s.key(bucket, key)] = data
	return int64(len(data)), nil
}

func (s *stubStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	return nil, objectstore.ObjectInfo{}, fmt.Errorf("not implemented")
}

func (s *stubStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(bucket, key)]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("no such object")
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *stubStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, s.key(bucket, key))
	return nil
}

func (s *stubStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://presigned.example.org/" + bucket + "/" + key, nil
}

type scheduled struct {
	runID string
	delay time.Duration
}

type stubQueue struct {
	mu            sync.Mutex
	runsScheduled []scheduled
	notifications []scheduled
	scheduleErr   error
}

func (q *stubQueue) ScheduleRun(ctx context.Context, runID string, delay time.Duration) (string, error) {
	if q.scheduleErr != nil {
		return "", q.scheduleErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runsScheduled = append(q.runsScheduled, scheduled{runID, delay})
	return "task-" + runID, nil
}

func (q *stubQueue) ScheduleNotification(ctx context.Context, runID string, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifications = append(q.notifications, scheduled{runID, delay})
	return "notify-" + runID, nil
}

var _ repo.ExportRepository = (*stubExports)(nil)
var _ repo.RunRepository = (*stubRuns)(nil)
var _ queue.TaskQueue = (*stubQueue)(nil)
var _ objectstore.Store = (*stubStore)(nil)
