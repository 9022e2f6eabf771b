package queue

import (
	"context"
	"time"
)

// Message is the work item exchanged over the queue: one run identifier.
type Message struct {
	RunID      string    `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	TaskID     string    `json:"task_id"`
}

// Handler processes one delivered work item.
type Handler func(ctx context.Context, msg Message) error

// TaskQueue is the job-queue collaborator: submit work, receive completion.
// Each scheduled item is eventually delivered to exactly one worker. The
// returned task id is an opaque handle recorded against the run for
// traceability.
type TaskQueue interface {
	// ScheduleRun enqueues run processing after an optional delay.
	ScheduleRun(ctx context.Context, runID string, delay time.Duration) (string, error)

	// ScheduleNotification enqueues a completion notification after an
	// optional delay, decoupling delivery from the run's critical path.
	ScheduleNotification(ctx context.Context, runID string, delay time.Duration) (string, error)
}
