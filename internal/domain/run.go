package domain

import (
	"errors"
	"strings"
	"time"
)

// ExportRun is one execution attempt of an Export. Status transitions are
// owned exclusively by the run coordinator and only ever move forward.
type ExportRun struct {
	ID           string
	ExportID     string
	Status       RunState
	Results      *RunResults
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	TaskID       string
	ArchiveKey   string
	TilesKey     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r ExportRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ExportID) == "" {
		return errors.New("export id is required")
	}
	if NormalizeRunState(string(r.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}

// Duration reports the run's processing time, or zero if it never finished.
func (r ExportRun) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// BuildingCount is the aggregate building count from the results payload.
func (r ExportRun) BuildingCount() int {
	if r.Results == nil {
		return 0
	}
	return r.Results.TotalBuildingCount
}
