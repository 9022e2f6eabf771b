package repo

import (
	"context"
	"errors"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleTransition is returned when a compare-and-set status update
	// found the run in a different state than expected.
	ErrStaleTransition = errors.New("stale run status transition")
)

type ExportFilter struct {
	OwnerID  string
	IsPublic *bool
	Limit    int
}

type RunFilter struct {
	ExportID string
	Status   domain.RunState
	Limit    int
}

// ExportRepository manages export configurations.
type ExportRepository interface {
	CreateExport(ctx context.Context, export domain.Export) error
	GetExport(ctx context.Context, id string) (domain.Export, error)
	ListExports(ctx context.Context, filter ExportFilter) ([]domain.Export, error)
	// HasActiveRun reports whether any run of the export is pending, queued
	// or processing.
	HasActiveRun(ctx context.Context, exportID string) (bool, error)
}

// RunRepository manages export runs. All status updates are atomic
// compare-and-set transitions; a mismatch yields ErrStaleTransition so the
// state machine can never move backward.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.ExportRun) error
	GetRun(ctx context.Context, id string) (domain.ExportRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.ExportRun, error)

	// SetTaskID records the opaque queue task handle for traceability.
	SetTaskID(ctx context.Context, id, taskID string) error

	// MarkQueued transitions pending -> queued.
	MarkQueued(ctx context.Context, id string) error

	// MarkProcessing transitions queued -> processing and records the start
	// timestamp. Refusal via ErrStaleTransition is the re-entrancy guard.
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error

	// Complete finalizes a processing run with its results payload and
	// artifact keys.
	Complete(ctx context.Context, id string, results *domain.RunResults, archiveKey, tilesKey string, completedAt time.Time) error

	// Fail finalizes a non-terminal run with the captured error text.
	Fail(ctx context.Context, id string, errorMessage string, completedAt time.Time) error

	// ListFinishedBefore returns terminal runs of non-public exports older
	// than the cutoff, for retention cleanup.
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExportRun, error)

	// DeleteRun removes a run record; stored artifacts are the caller's
	// responsibility.
	DeleteRun(ctx context.Context, id string) error
}
