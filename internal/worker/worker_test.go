package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/notify"
	"github.com/footprint-labs/footprint-go/internal/repo"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
)

type fakeRuns struct {
	repo.RunRepository

	runs    map[string]domain.ExportRun
	expired []domain.ExportRun
	deleted []string
}

func (f *fakeRuns) GetRun(ctx context.Context, id string) (domain.ExportRun, error) {
	r, ok := f.runs[id]
	if !ok {
		return domain.ExportRun{}, repo.ErrNotFound
	}
	return r, nil
}

func (f *fakeRuns) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExportRun, error) {
	return f.expired, nil
}

func (f *fakeRuns) DeleteRun(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeExports struct {
	repo.ExportRepository

	exports map[string]domain.Export
}

func (f *fakeExports) GetExport(ctx context.Context, id string) (domain.Export, error) {
	e, ok := f.exports[id]
	if !ok {
		return domain.Export{}, repo.ErrNotFound
	}
	return e, nil
}

type fakeStore struct {
	objectstore.Store

	deleted    []string
	presignErr error
}

func (f *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

func (f *fakeStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://dl.example.org/" + bucket + "/" + key, nil
}

type fakeNotifier struct {
	sent []notify.Completion
	err  error
}

func (f *fakeNotifier) NotifyCompleted(ctx context.Context, c notify.Completion) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c)
	return nil
}

func TestJanitor_Sweep(t *testing.T) {
	runsRepo := &fakeRuns{expired: []domain.ExportRun{
		{ID: "old-1", ArchiveKey: "old-1.zip", TilesKey: "old-1.pmtiles"},
		{ID: "old-2", ArchiveKey: "old-2.zip"},
		{ID: "old-3"},
	}}
	store := &fakeStore{}
	j := NewJanitor(runsRepo, store, "archives", "tiles", 30*24*time.Hour, time.Hour, nil)

	n, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"old-1", "old-2", "old-3"}, runsRepo.deleted)
	assert.ElementsMatch(t, []string{
		"archives/old-1.zip", "tiles/old-1.pmtiles", "archives/old-2.zip",
	}, store.deleted)
}

func completedRun(id string) domain.ExportRun {
	now := time.Now().UTC()
	return domain.ExportRun{
		ID:          id,
		ExportID:    "exp-1",
		Status:      domain.RunStateCompleted,
		Results:     &domain.RunResults{TotalBuildingCount: 7},
		ArchiveKey:  id + ".zip",
		CompletedAt: &now,
	}
}

func newSender(runsRepo *fakeRuns, exports *fakeExports, store *fakeStore, n notify.Notifier) *CompletionSender {
	return NewCompletionSender(exports, runsRepo, store, n, "archives", time.Hour, nil)
}

func TestCompletionSender_Send(t *testing.T) {
	runsRepo := &fakeRuns{runs: map[string]domain.ExportRun{"run-1": completedRun("run-1")}}
	exports := &fakeExports{exports: map[string]domain.Export{
		"exp-1": {ID: "exp-1", Name: "Bern", NotifyEmail: "owner@example.org"},
	}}
	notifier := &fakeNotifier{}

	newSender(runsRepo, exports, &fakeStore{}, notifier).Send(context.Background(), "run-1")

	require.Len(t, notifier.sent, 1)
	c := notifier.sent[0]
	assert.Equal(t, "owner@example.org", c.Recipient)
	assert.Equal(t, 7, c.BuildingCount)
	assert.Equal(t, "https://dl.example.org/archives/run-1.zip", c.DownloadURL)
}

func TestCompletionSender_SkipsWithoutAddress(t *testing.T) {
	runsRepo := &fakeRuns{runs: map[string]domain.ExportRun{"run-1": completedRun("run-1")}}
	exports := &fakeExports{exports: map[string]domain.Export{"exp-1": {ID: "exp-1", Name: "Bern"}}}
	notifier := &fakeNotifier{}

	newSender(runsRepo, exports, &fakeStore{}, notifier).Send(context.Background(), "run-1")
	assert.Empty(t, notifier.sent)
}

func TestCompletionSender_SkipsNonTerminalRun(t *testing.T) {
	run := completedRun("run-1")
	run.Status = domain.RunStateProcessing
	runsRepo := &fakeRuns{runs: map[string]domain.ExportRun{"run-1": run}}
	exports := &fakeExports{exports: map[string]domain.Export{
		"exp-1": {ID: "exp-1", NotifyEmail: "owner@example.org"},
	}}
	notifier := &fakeNotifier{}

	newSender(runsRepo, exports, &fakeStore{}, notifier).Send(context.Background(), "run-1")
	assert.Empty(t, notifier.sent)
}

func TestCompletionSender_PresignFailureStillSends(t *testing.T) {
	runsRepo := &fakeRuns{runs: map[string]domain.ExportRun{"run-1": completedRun("run-1")}}
	exports := &fakeExports{exports: map[string]domain.Export{
		"exp-1": {ID: "exp-1", NotifyEmail: "owner@example.org"},
	}}
	notifier := &fakeNotifier{}
	store := &fakeStore{presignErr: errors.New("presign broken")}

	newSender(runsRepo, exports, store, notifier).Send(context.Background(), "run-1")
	require.Len(t, notifier.sent, 1)
	assert.Empty(t, notifier.sent[0].DownloadURL)
}
