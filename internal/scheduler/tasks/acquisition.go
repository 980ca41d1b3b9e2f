// Package tasks binds task types to their handlers and default intervals.
package tasks

import (
	"context"
	"time"

	"github.com/driftwood/driftwood/internal/acquisition"
	"github.com/driftwood/driftwood/internal/config"
	"github.com/driftwood/driftwood/internal/scheduler"
)

func interval(minutes, fallback int) time.Duration {
	if minutes <= 0 {
		minutes = fallback
	}
	return time.Duration(minutes) * time.Minute
}

// RegisterIndexSyncTask registers the periodic full search over all wanted
// items.
func RegisterIndexSyncTask(ctx context.Context, sched *scheduler.Scheduler, coord *acquisition.Coordinator, cfg *config.TasksConfig) error {
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskIndexSync,
		Interval: interval(cfg.IndexSyncMinutes, 60),
		Enabled:  true,
	}, coord.RunSearch)
}

// RegisterRequestedSearchTask registers the short-interval search pass that
// picks up freshly added items without waiting for the full sync.
func RegisterRequestedSearchTask(ctx context.Context, sched *scheduler.Scheduler, coord *acquisition.Coordinator, cfg *config.TasksConfig) error {
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskRequestedSearch,
		Interval: interval(cfg.RequestedSearchMinutes, 15),
		Enabled:  true,
	}, coord.RunSearch)
}

// RegisterDownloadMonitorTask registers reconciliation of pending downloads
// with the download client.
func RegisterDownloadMonitorTask(ctx context.Context, sched *scheduler.Scheduler, coord *acquisition.Coordinator, cfg *config.TasksConfig) error {
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskDownloadMonitor,
		Interval: interval(cfg.DownloadMonitorMinutes, 1),
		Enabled:  true,
	}, coord.RunDownloadMonitor)
}

// RegisterCompletedScanTask registers the import pass over completed
// downloads.
func RegisterCompletedScanTask(ctx context.Context, sched *scheduler.Scheduler, coord *acquisition.Coordinator, cfg *config.TasksConfig) error {
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskCompletedScan,
		Interval: interval(cfg.CompletedScanMinutes, 5),
		Enabled:  true,
	}, coord.RunCompletedScan)
}
