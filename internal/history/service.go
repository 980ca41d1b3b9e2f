package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/scheduler"
)

// Publisher pushes history events out to connected clients. The websocket
// hub satisfies this; a nil Publisher disables broadcasting.
type Publisher interface {
	Publish(event string, payload any)
}

// Service provides history management functionality.
type Service struct {
	db        *sql.DB
	publisher Publisher
	logger    zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    logger.With().Str("component", "history").Logger(),
	}
}

// Create creates a new history entry.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Entry, error) {
	var dataJSON sql.NullString
	if input.Data != nil {
		bytes, err := json.Marshal(input.Data)
		if err != nil {
			return nil, err
		}
		dataJSON = sql.NullString{String: string(bytes), Valid: true}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history (event_type, task_type, outcome, duration_ms, error, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(input.EventType),
		sql.NullString{String: input.TaskType, Valid: input.TaskType != ""},
		sql.NullString{String: input.Outcome, Valid: input.Outcome != ""},
		sql.NullInt64{Int64: input.DurationMs, Valid: input.DurationMs != 0},
		sql.NullString{String: input.Error, Valid: input.Error != ""},
		dataJSON,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to create history entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:         id,
		EventType:  input.EventType,
		TaskType:   input.TaskType,
		Outcome:    input.Outcome,
		DurationMs: input.DurationMs,
		Error:      input.Error,
		Data:       input.Data,
		CreatedAt:  now,
	}

	if s.publisher != nil {
		s.publisher.Publish("history:created", entry)
	}
	return entry, nil
}

// ReportRun records the outcome of a scheduler task run. It satisfies
// scheduler.Reporter.
func (s *Service) ReportRun(taskType scheduler.TaskType, outcome scheduler.Outcome, duration time.Duration, runErr error) {
	input := CreateInput{
		EventType:  EventTypeTaskRun,
		TaskType:   string(taskType),
		Outcome:    string(outcome),
		DurationMs: duration.Milliseconds(),
	}
	if runErr != nil {
		input.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Create(ctx, input); err != nil {
		s.logger.Error().Err(err).Str("task", string(taskType)).Msg("Failed to record task run")
	}
}

// RecordGrab records that a release was sent to the download client.
func (s *Service) RecordGrab(ctx context.Context, data GrabData) error {
	return s.record(ctx, EventTypeGrabbed, data)
}

// RecordImport records a file import for an item without a file.
func (s *Service) RecordImport(ctx context.Context, data ImportData) error {
	return s.record(ctx, EventTypeImported, data)
}

// RecordUpgrade records an import that replaced an existing file.
func (s *Service) RecordUpgrade(ctx context.Context, data ImportData) error {
	return s.record(ctx, EventTypeUpgraded, data)
}

// RecordReject records a completed download that was discarded.
func (s *Service) RecordReject(ctx context.Context, data RejectData) error {
	return s.record(ctx, EventTypeRejected, data)
}

func (s *Service) record(ctx context.Context, eventType EventType, data any) error {
	dataMap, err := ToJSON(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to marshal event data")
		dataMap = nil
	}
	_, err = s.Create(ctx, CreateInput{EventType: eventType, Data: dataMap})
	return err
}

// List lists history entries with pagination and filtering.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	where := "WHERE 1=1"
	args := []any{}
	if opts.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, opts.EventType)
	}
	if opts.TaskType != "" {
		where += " AND task_type = ?"
		args = append(args, opts.TaskType)
	}
	if !opts.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	var totalCount int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM history "+where, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	query := `
		SELECT id, event_type, task_type, outcome, duration_ms, error, data, created_at
		FROM history ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, opts.PageSize)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int(totalCount) / opts.PageSize
	if int(totalCount)%opts.PageSize > 0 {
		totalPages++
	}

	return &ListResponse{
		Items:      entries,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}, nil
}

// Cleanup removes entries older than the retention window. Used by the
// cleanup task. Returns the number of rows deleted.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("Cleaned up history entries")
	}
	return deleted, nil
}

// DeleteAll deletes all history entries.
func (s *Service) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		entry      Entry
		taskType   sql.NullString
		outcome    sql.NullString
		durationMs sql.NullInt64
		errMsg     sql.NullString
		data       sql.NullString
	)
	if err := rows.Scan(&entry.ID, &entry.EventType, &taskType, &outcome, &durationMs, &errMsg, &data, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.TaskType = taskType.String
	entry.Outcome = outcome.String
	entry.DurationMs = durationMs.Int64
	entry.Error = errMsg.String
	if data.Valid {
		var m map[string]any
		if err := json.Unmarshal([]byte(data.String), &m); err == nil {
			entry.Data = m
		}
	}
	return &entry, nil
}
