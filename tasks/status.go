// Package tasks tracks asynchronous Muset generation jobs. The backend
// exposes a task-status endpoint; this package polls it until a task
// reaches a terminal state, standing in for a push-based update channel.
package tasks

import (
	"context"
	"encoding/json"
)

// Status is the lifecycle state of a backend task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	// StatusGenerating is the backend's alias for a running
	// roadmap/content generation job.
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further state changes can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is the latest observed state of a task. Pollers hold at most
// one snapshot and do not accumulate history.
type Snapshot struct {
	TaskID string          `json:"task_id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusClient queries the task-status endpoint.
type StatusClient interface {
	TaskStatus(ctx context.Context, taskID string) (*Snapshot, error)
}
