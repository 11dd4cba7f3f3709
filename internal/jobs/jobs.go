package jobs

import (
	"context"
	"time"
)

// TaskFunc is the work a scheduled task performs on each run
type TaskFunc func(ctx context.Context) error

// RunStatus represents the outcome of a task run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusRetrying  RunStatus = "retrying"
	RunStatusFailed    RunStatus = "failed"
)

// TaskConfig holds task configuration
type TaskConfig struct {
	// Maximum number of retries after the first failed attempt
	MaxRetries int

	// Retry backoff strategy
	RetryBackoff BackoffStrategy

	// Timeout for a single attempt
	Timeout time.Duration
}

// DefaultTaskConfig returns a default task configuration
func DefaultTaskConfig() *TaskConfig {
	return &TaskConfig{
		MaxRetries:   3,
		RetryBackoff: ExponentialBackoff,
		Timeout:      5 * time.Minute,
	}
}

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy string

const (
	NoBackoff          BackoffStrategy = "none"
	LinearBackoff      BackoffStrategy = "linear"
	ExponentialBackoff BackoffStrategy = "exponential"
)

// CalculateBackoff calculates the delay before next retry
func CalculateBackoff(strategy BackoffStrategy, attempt int) time.Duration {
	switch strategy {
	case NoBackoff:
		return 0
	case LinearBackoff:
		return time.Duration(attempt) * time.Second
	case ExponentialBackoff:
		// 2^attempt seconds, capped at 1 hour
		if attempt > 12 {
			return time.Hour
		}
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > time.Hour {
			return time.Hour
		}
		return delay
	default:
		return 0
	}
}

// TaskError represents a failed task run
type TaskError struct {
	TaskID   string
	RunID    string
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return "task " + e.TaskID + " run " + e.RunID + " failed: " + e.Err.Error()
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// RunInfo describes the latest run of a task
type RunInfo struct {
	RunID       string        `json:"run_id"`
	Status      RunStatus     `json:"status"`
	Attempts    int           `json:"attempts"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}
