package tasks

import (
	"context"
	"time"

	"github.com/driftwood/driftwood/internal/config"
	"github.com/driftwood/driftwood/internal/database"
	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/scheduler"
)

// RegisterLibraryScanTask registers reconciliation of file rows with the
// filesystem.
func RegisterLibraryScanTask(ctx context.Context, sched *scheduler.Scheduler, lib *library.Service, cfg *config.Config) error {
	rootDir := cfg.Library.RootDir
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskLibraryScan,
		Interval: interval(cfg.Tasks.LibraryScanMinutes, 720),
		Enabled:  true,
	}, func(ctx context.Context) error {
		_, err := lib.Scan(ctx, rootDir)
		return err
	})
}

// RegisterCleanupTask registers trimming of history entries beyond the
// retention window.
func RegisterCleanupTask(ctx context.Context, sched *scheduler.Scheduler, hist *history.Service, cfg *config.Config) error {
	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskCleanup,
		Interval: interval(cfg.Tasks.CleanupMinutes, 1440),
		Enabled:  true,
	}, func(ctx context.Context) error {
		_, err := hist.Cleanup(ctx, retention)
		return err
	})
}

// RegisterMetadataRefreshTask registers re-tagging of files whose quality
// could not be guessed at import time.
func RegisterMetadataRefreshTask(ctx context.Context, sched *scheduler.Scheduler, lib *library.Service, cfg *config.Config) error {
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskMetadataRefresh,
		Interval: interval(cfg.Tasks.MetadataRefreshMinutes, 1440),
		Enabled:  true,
	}, func(ctx context.Context) error {
		_, err := lib.RefreshFileQualities(ctx)
		return err
	})
}

// RegisterBackupTask registers periodic database snapshots.
func RegisterBackupTask(ctx context.Context, sched *scheduler.Scheduler, db *database.DB, cfg *config.Config) error {
	backupDir := cfg.Database.BackupDir
	keep := cfg.Database.BackupKeep
	return sched.Register(ctx, scheduler.TaskDefinition{
		Type:     scheduler.TaskBackup,
		Interval: interval(cfg.Tasks.BackupMinutes, 1440),
		Enabled:  true,
	}, func(ctx context.Context) error {
		_, err := db.Backup(ctx, backupDir, keep)
		return err
	})
}
