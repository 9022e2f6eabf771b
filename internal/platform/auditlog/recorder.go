package auditlog

import (
	"context"
	"log/slog"
)

// Recorder writes audit events best-effort. An insert failure is logged
// and swallowed so auditing can never fail a run.
type Recorder struct {
	db     QueryRower
	actor  string
	logger *slog.Logger
}

func NewRecorder(db QueryRower, actor string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if actor == "" {
		actor = "exportd"
	}
	return &Recorder{db: db, actor: actor, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, action, resourceType, resourceID, taskID string, payload any) {
	if r == nil || r.db == nil {
		return
	}
	_, err := Insert(ctx, r.db, Event{
		Actor:        r.actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		TaskID:       taskID,
		Payload:      payload,
	})
	if err != nil {
		r.logger.Warn("audit event dropped",
			"action", action, "resource_id", resourceID, "error", err)
	}
}
