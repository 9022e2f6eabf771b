// Package worker connects the queue to the pipeline: it consumes run work
// items and notification items, and runs the retention janitor.
package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/footprint-labs/footprint-go/internal/queue"
)

// Consumer is the queue side the worker needs.
type Consumer interface {
	Consume(ctx context.Context, subject, durable string, handler queue.Handler) error
}

// Processor executes one run.
type Processor interface {
	Process(ctx context.Context, runID string) error
}

// Worker runs the consumers until the context is cancelled.
type Worker struct {
	queue     Consumer
	processor Processor
	sender    *CompletionSender
	janitor   *Janitor
	logger    *slog.Logger
}

func New(q Consumer, processor Processor, sender *CompletionSender, janitor *Janitor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: q, processor: processor, sender: sender, janitor: janitor, logger: logger}
}

// Run blocks until ctx is cancelled. A failed run never crashes the
// worker; only consumer setup errors propagate.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.queue.Consume(gctx, queue.SubjectRuns, "exportd-runs", func(ctx context.Context, msg queue.Message) error {
			return w.processor.Process(ctx, msg.RunID)
		})
	})

	if w.sender != nil {
		g.Go(func() error {
			return w.queue.Consume(gctx, queue.SubjectNotify, "exportd-notify", func(ctx context.Context, msg queue.Message) error {
				// Delivery failures are logged inside; a lost email never
				// bounces the message.
				w.sender.Send(ctx, msg.RunID)
				return nil
			})
		})
	}

	if w.janitor != nil {
		g.Go(func() error {
			w.janitor.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}
