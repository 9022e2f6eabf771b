package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/footprint-labs/footprint-go/internal/notify"
	"github.com/footprint-labs/footprint-go/internal/repo"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
)

// CompletionSender assembles and delivers the completion notice for one
// run. Everything here is best effort; failures are logged only.
type CompletionSender struct {
	exports  repo.ExportRepository
	runs     repo.RunRepository
	store    objectstore.Store
	notifier notify.Notifier
	bucket   string
	linkTTL  time.Duration
	logger   *slog.Logger
}

func NewCompletionSender(exports repo.ExportRepository, runsRepo repo.RunRepository, store objectstore.Store, notifier notify.Notifier, archiveBucket string, linkTTL time.Duration, logger *slog.Logger) *CompletionSender {
	if linkTTL <= 0 {
		linkTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionSender{
		exports:  exports,
		runs:     runsRepo,
		store:    store,
		notifier: notifier,
		bucket:   archiveBucket,
		linkTTL:  linkTTL,
		logger:   logger,
	}
}

func (s *CompletionSender) Send(ctx context.Context, runID string) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		s.logger.Warn("notification skipped, run not found", "run_id", runID, "error", err)
		return
	}
	if !run.Status.IsTerminal() {
		s.logger.Warn("notification skipped, run not finished", "run_id", runID, "status", run.Status)
		return
	}
	export, err := s.exports.GetExport(ctx, run.ExportID)
	if err != nil {
		s.logger.Warn("notification skipped, export not found", "run_id", runID, "error", err)
		return
	}
	if export.NotifyEmail == "" {
		return
	}

	var downloadURL string
	if run.ArchiveKey != "" {
		downloadURL, err = s.store.PresignGet(ctx, s.bucket, run.ArchiveKey, s.linkTTL)
		if err != nil {
			s.logger.Warn("download link not generated", "run_id", runID, "error", err)
			downloadURL = ""
		}
	}

	finishedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		finishedAt = *run.CompletedAt
	}
	c := notify.Completion{
		Recipient:     export.NotifyEmail,
		ExportName:    export.Name,
		RunID:         run.ID,
		Status:        run.Status,
		BuildingCount: run.BuildingCount(),
		DownloadURL:   downloadURL,
		FinishedAt:    finishedAt,
	}
	if err := s.notifier.NotifyCompleted(ctx, c); err != nil {
		s.logger.Warn("completion notification failed", "run_id", runID, "error", err)
	}
}
