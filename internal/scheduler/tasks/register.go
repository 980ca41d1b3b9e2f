package tasks

import (
	"context"

	"github.com/driftwood/driftwood/internal/acquisition"
	"github.com/driftwood/driftwood/internal/config"
	"github.com/driftwood/driftwood/internal/database"
	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/scheduler"
)

// Deps bundles the collaborators the task handlers close over.
type Deps struct {
	Scheduler   *scheduler.Scheduler
	Coordinator *acquisition.Coordinator
	Library     *library.Service
	History     *history.Service
	DB          *database.DB
	Config      *config.Config
}

// RegisterAll registers every task type with the scheduler. The set is
// closed: all eight types are always registered, enable/disable is runtime
// state.
func RegisterAll(ctx context.Context, d Deps) error {
	if err := RegisterIndexSyncTask(ctx, d.Scheduler, d.Coordinator, &d.Config.Tasks); err != nil {
		return err
	}
	if err := RegisterRequestedSearchTask(ctx, d.Scheduler, d.Coordinator, &d.Config.Tasks); err != nil {
		return err
	}
	if err := RegisterDownloadMonitorTask(ctx, d.Scheduler, d.Coordinator, &d.Config.Tasks); err != nil {
		return err
	}
	if err := RegisterCompletedScanTask(ctx, d.Scheduler, d.Coordinator, &d.Config.Tasks); err != nil {
		return err
	}
	if err := RegisterLibraryScanTask(ctx, d.Scheduler, d.Library, d.Config); err != nil {
		return err
	}
	if err := RegisterCleanupTask(ctx, d.Scheduler, d.History, d.Config); err != nil {
		return err
	}
	if err := RegisterMetadataRefreshTask(ctx, d.Scheduler, d.Library, d.Config); err != nil {
		return err
	}
	return RegisterBackupTask(ctx, d.Scheduler, d.DB, d.Config)
}
