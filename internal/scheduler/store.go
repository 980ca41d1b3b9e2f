package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SQLiteStore persists task definitions in the application database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore creates a task store backed by SQLite.
func NewSQLiteStore(db *sql.DB, logger zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "task-store").Logger(),
	}
}

// LoadAll returns every persisted task definition.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]TaskDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, interval_minutes, enabled, last_run_at, next_run_at, last_duration_ms
		FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	var defs []TaskDefinition
	for rows.Next() {
		var (
			def            TaskDefinition
			taskType       string
			intervalMin    int64
			lastRun        sql.NullTime
			nextRun        sql.NullTime
			lastDurationMs sql.NullInt64
		)
		if err := rows.Scan(&taskType, &intervalMin, &def.Enabled, &lastRun, &nextRun, &lastDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		parsed, err := ParseTaskType(taskType)
		if err != nil {
			// A row for a type this build no longer knows is skipped, not fatal.
			s.logger.Warn().Str("type", taskType).Msg("Ignoring persisted task of unknown type")
			continue
		}
		def.Type = parsed
		def.Interval = time.Duration(intervalMin) * time.Minute
		if lastRun.Valid {
			t := lastRun.Time.UTC()
			def.LastRunAt = &t
		}
		if nextRun.Valid {
			t := nextRun.Time.UTC()
			def.NextRunAt = &t
		}
		if lastDurationMs.Valid {
			d := time.Duration(lastDurationMs.Int64) * time.Millisecond
			def.LastDuration = &d
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Save upserts a task definition.
func (s *SQLiteStore) Save(ctx context.Context, def TaskDefinition) error {
	var (
		lastRun        sql.NullTime
		nextRun        sql.NullTime
		lastDurationMs sql.NullInt64
	)
	if def.LastRunAt != nil {
		lastRun = sql.NullTime{Time: def.LastRunAt.UTC(), Valid: true}
	}
	if def.NextRunAt != nil {
		nextRun = sql.NullTime{Time: def.NextRunAt.UTC(), Valid: true}
	}
	if def.LastDuration != nil {
		lastDurationMs = sql.NullInt64{Int64: def.LastDuration.Milliseconds(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (type, interval_minutes, enabled, last_run_at, next_run_at, last_duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET
			interval_minutes = excluded.interval_minutes,
			enabled = excluded.enabled,
			last_run_at = excluded.last_run_at,
			next_run_at = excluded.next_run_at,
			last_duration_ms = excluded.last_duration_ms`,
		string(def.Type), int64(def.Interval/time.Minute), def.Enabled, lastRun, nextRun, lastDurationMs)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", def.Type, err)
	}
	return nil
}
