// Package history records what the automation core did and when: task
// runs, grabs, imports and quality decisions.
package history

import (
	"encoding/json"
	"time"
)

// EventType represents the type of history event.
type EventType string

const (
	EventTypeTaskRun  EventType = "task_run"
	EventTypeGrabbed  EventType = "grabbed"
	EventTypeImported EventType = "imported"
	EventTypeUpgraded EventType = "upgraded"
	EventTypeRejected EventType = "rejected"
	EventTypeFailed   EventType = "failed"
)

// Entry represents a history entry.
type Entry struct {
	ID         int64          `json:"id"`
	EventType  EventType      `json:"eventType"`
	TaskType   string         `json:"taskType,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// CreateInput contains fields for creating a history entry.
type CreateInput struct {
	EventType  EventType
	TaskType   string
	Outcome    string
	DurationMs int64
	Error      string
	Data       map[string]any
}

// ListOptions contains options for listing history.
type ListOptions struct {
	EventType string
	TaskType  string
	Since     time.Time
	Page      int
	PageSize  int
}

// ListResponse contains paginated history results.
type ListResponse struct {
	Items      []*Entry `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalCount int64    `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
}

// GrabData contains data for grab events.
type GrabData struct {
	MediaItemID int64  `json:"mediaItemId"`
	Title       string `json:"title,omitempty"`
	ReleaseName string `json:"releaseName,omitempty"`
	Indexer     string `json:"indexer,omitempty"`
	Quality     string `json:"quality,omitempty"`
	DownloadID  string `json:"downloadId,omitempty"`
}

// ImportData contains data for import and upgrade events.
type ImportData struct {
	MediaItemID int64  `json:"mediaItemId"`
	Title       string `json:"title,omitempty"`
	Path        string `json:"path,omitempty"`
	Quality     string `json:"quality,omitempty"`
	OldQuality  string `json:"oldQuality,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// RejectData contains data for rejection events.
type RejectData struct {
	MediaItemID int64  `json:"mediaItemId"`
	ReleaseName string `json:"releaseName,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ToJSON converts a data struct to a JSON map.
func ToJSON(v any) (map[string]any, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}
