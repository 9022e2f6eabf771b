package domain

import "strings"

// RunState is the lifecycle state of an export run.
type RunState string

const (
	RunStatePending    RunState = "pending"
	RunStateQueued     RunState = "queued"
	RunStateProcessing RunState = "processing"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
)

// NormalizeRunState maps free-form status values to canonical run states.
func NormalizeRunState(value string) RunState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RunStatePending), "created":
		return RunStatePending
	case string(RunStateQueued):
		return RunStateQueued
	case string(RunStateProcessing):
		return RunStateProcessing
	case string(RunStateCompleted):
		return RunStateCompleted
	case string(RunStateFailed):
		return RunStateFailed
	default:
		return ""
	}
}

// IsTerminal reports whether a run in this state is immutable.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// CanTransitionRunState enforces forward-only state progression.
func CanTransitionRunState(current, next RunState) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return false
	}
	if current.IsTerminal() {
		return false
	}
	return runStateOrder(current) < runStateOrder(next)
}

func runStateOrder(state RunState) int {
	switch state {
	case RunStatePending:
		return 1
	case RunStateQueued:
		return 2
	case RunStateProcessing:
		return 3
	case RunStateCompleted, RunStateFailed:
		return 4
	default:
		return 0
	}
}
