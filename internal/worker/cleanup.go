package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/footprint-labs/footprint-go/internal/repo"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
)

const cleanupBatchSize = 100

// Janitor deletes finished runs of non-public exports once they pass the
// retention window, along with their stored artifacts.
type Janitor struct {
	runs           repo.RunRepository
	store          objectstore.Store
	archivesBucket string
	tilesBucket    string
	retention      time.Duration
	interval       time.Duration
	logger         *slog.Logger
}

func NewJanitor(runsRepo repo.RunRepository, store objectstore.Store, archivesBucket, tilesBucket string, retention, interval time.Duration, logger *slog.Logger) *Janitor {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		runs:           runsRepo,
		store:          store,
		archivesBucket: archivesBucket,
		tilesBucket:    tilesBucket,
		retention:      retention,
		interval:       interval,
		logger:         logger,
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := j.Sweep(ctx); err != nil {
				j.logger.Error("retention sweep failed", "error", err)
			} else if n > 0 {
				j.logger.Info("retention sweep done", "deleted_runs", n)
			}
		}
	}
}

// Sweep deletes one batch of expired runs and returns how many went.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.retention)
	expired, err := j.runs.ListFinishedBefore(ctx, cutoff, cleanupBatchSize)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, run := range expired {
		if run.ArchiveKey != "" {
			if err := j.store.Delete(ctx, j.archivesBucket, run.ArchiveKey); err != nil {
				j.logger.Warn("archive delete failed", "run_id", run.ID, "key", run.ArchiveKey, "error", err)
			}
		}
		if run.TilesKey != "" {
			if err := j.store.Delete(ctx, j.tilesBucket, run.TilesKey); err != nil {
				j.logger.Warn("tiles delete failed", "run_id", run.ID, "key", run.TilesKey, "error", err)
			}
		}
		if err := j.runs.DeleteRun(ctx, run.ID); err != nil {
			j.logger.Warn("run delete failed", "run_id", run.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
