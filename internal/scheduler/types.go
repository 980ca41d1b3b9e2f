// Package scheduler drives the recurring background tasks: interval-based,
// restart-safe, at most one concurrent execution per task.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TaskType identifies a recurring task. The set is closed: every type is
// known at compile time and has exactly one handler.
type TaskType string

const (
	TaskIndexSync       TaskType = "periodic-index-sync"
	TaskLibraryScan     TaskType = "library-scan"
	TaskCleanup         TaskType = "cleanup"
	TaskMetadataRefresh TaskType = "metadata-refresh"
	TaskBackup          TaskType = "backup"
	TaskDownloadMonitor TaskType = "download-monitor"
	TaskRequestedSearch TaskType = "requested-search"
	TaskCompletedScan   TaskType = "completed-scan"
)

// AllTaskTypes lists every known task type.
var AllTaskTypes = []TaskType{
	TaskIndexSync,
	TaskLibraryScan,
	TaskCleanup,
	TaskMetadataRefresh,
	TaskBackup,
	TaskDownloadMonitor,
	TaskRequestedSearch,
	TaskCompletedScan,
}

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Scheduler errors.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrAlreadyRegistered = errors.New("task type already registered")
	ErrNilHandler        = errors.New("task handler is nil")
)

// HandlerFunc is the function signature for task handlers. Handlers impose
// their own timeouts on collaborator calls; the scheduler does not.
type HandlerFunc func(ctx context.Context) error

// TaskDefinition holds the schedule state of a single task.
type TaskDefinition struct {
	Type         TaskType       `json:"type"`
	Interval     time.Duration  `json:"interval"`
	Enabled      bool           `json:"enabled"`
	LastRunAt    *time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time     `json:"nextRunAt,omitempty"`
	LastDuration *time.Duration `json:"lastDuration,omitempty"`
}

// TaskInfo describes a task's schedule and run state for API responses.
type TaskInfo struct {
	Type         TaskType       `json:"type"`
	Interval     time.Duration  `json:"interval"`
	Enabled      bool           `json:"enabled"`
	LastRunAt    *time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time     `json:"nextRunAt,omitempty"`
	LastDuration *time.Duration `json:"lastDuration,omitempty"`
	Running      bool           `json:"running"`
	RunningFor   time.Duration  `json:"runningFor,omitempty"`
}

// Outcome classifies a finished (or skipped) task run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Store persists task definitions across restarts.
type Store interface {
	LoadAll(ctx context.Context) ([]TaskDefinition, error)
	Save(ctx context.Context, def TaskDefinition) error
}

// Reporter receives the outcome of every run (and every skipped manual
// trigger) for observability.
type Reporter interface {
	ReportRun(taskType TaskType, outcome Outcome, duration time.Duration, err error)
}
