// Package downloader hands releases to an external download client and
// reports on their progress.
package downloader

import (
	"context"
	"errors"
)

// Status classifies a download from the acquisition loop's point of view.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// DownloadItem is the client-side view of one in-flight download.
type DownloadItem struct {
	JobID    string  `json:"jobId"`
	Title    string  `json:"title"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	SavePath string  `json:"savePath,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Client is the minimal surface the acquisition loop needs from a download
// client.
type Client interface {
	// Fetch hands a release to the client and returns an opaque job handle
	// for later reconciliation.
	Fetch(ctx context.Context, sourceRef, title string) (string, error)
	// ListActive returns every download this service started that the
	// client still knows about, completed ones included.
	ListActive(ctx context.Context) ([]DownloadItem, error)
}

var (
	ErrNotConfigured = errors.New("download client is not configured")
	ErrAuthFailed    = errors.New("download client rejected the credentials")
)
