package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName = "EXPORTS"

	SubjectRuns   = "exports.runs.process"
	SubjectNotify = "exports.notify.completed"
)

// NATSQueue is the JetStream-backed task queue.
type NATSQueue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

func NewNATSQueue(url string, logger *slog.Logger) (*NATSQueue, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	q := &NATSQueue{conn: conn, js: js, logger: logger}
	if err := q.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *NATSQueue) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"exports.>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

func (q *NATSQueue) Close() {
	if q == nil || q.conn == nil {
		return
	}
	q.conn.Close()
}

func (q *NATSQueue) ScheduleRun(ctx context.Context, runID string, delay time.Duration) (string, error) {
	return q.schedule(ctx, SubjectRuns, runID, delay)
}

func (q *NATSQueue) ScheduleNotification(ctx context.Context, runID string, delay time.Duration) (string, error) {
	return q.schedule(ctx, SubjectNotify, runID, delay)
}

func (q *NATSQueue) schedule(ctx context.Context, subject, runID string, delay time.Duration) (string, error) {
	if q == nil || q.js == nil {
		return "", fmt.Errorf("queue not initialized")
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	taskID := uuid.NewString()
	msg := Message{RunID: runID, EnqueuedAt: time.Now().UTC(), TaskID: taskID}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	publish := func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := q.js.Publish(pubCtx, subject, data, jetstream.WithMsgID(taskID)); err != nil {
			q.logger.Error("queue publish failed", "subject", subject, "run_id", runID, "error", err)
		}
	}

	if delay <= 0 {
		pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := q.js.Publish(pubCtx, subject, data, jetstream.WithMsgID(taskID)); err != nil {
			return "", fmt.Errorf("publish: %w", err)
		}
		return taskID, nil
	}

	// Delayed delivery: the publish itself is deferred. Losing a pending
	// timer on shutdown is acceptable for notification traffic.
	time.AfterFunc(delay, publish)
	return taskID, nil
}

// Consume delivers messages from one subject to the handler until the
// context is cancelled. Handler errors are logged and acknowledged; run
// failure semantics live in the run state machine, not in redelivery.
func (q *NATSQueue) Consume(ctx context.Context, subject, durable string, handler Handler) error {
	if q == nil || q.js == nil {
		return fmt.Errorf("queue not initialized")
	}
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Minute,
		MaxDeliver:    1,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	cc, err := consumer.Consume(func(m jetstream.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			q.logger.Error("malformed queue message", "subject", subject, "error", err)
			_ = m.Term()
			return
		}
		if err := handler(ctx, msg); err != nil {
			q.logger.Error("queue handler failed", "subject", subject, "run_id", msg.RunID, "error", err)
		}
		_ = m.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return nil
}
