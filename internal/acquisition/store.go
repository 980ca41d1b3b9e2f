package acquisition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus tracks a download row through its lifecycle. Rows start
// pending, the monitor moves them to completed or failed, and the completed
// scan finishes them as imported or discarded.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadCompleted DownloadStatus = "completed"
	DownloadImported  DownloadStatus = "imported"
	DownloadDiscarded DownloadStatus = "discarded"
	DownloadFailed    DownloadStatus = "failed"
)

// ErrDownloadNotFound is returned when a download row does not exist.
var ErrDownloadNotFound = errors.New("download not found")

// Download is one tracked grab.
type Download struct {
	ID          string         `json:"id"`
	MediaItemID int64          `json:"mediaItemId"`
	Title       string         `json:"title"`
	SourceRef   string         `json:"sourceRef"`
	QualityID   int            `json:"qualityId"`
	Status      DownloadStatus `json:"status"`
	ClientJobID string         `json:"clientJobId,omitempty"`
	SavePath    string         `json:"savePath,omitempty"`
	Error       string         `json:"error,omitempty"`
	AddedAt     time.Time      `json:"addedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// DownloadStore persists download rows in SQLite.
type DownloadStore struct {
	db *sql.DB
}

// NewDownloadStore creates a download store.
func NewDownloadStore(db *sql.DB) *DownloadStore {
	return &DownloadStore{db: db}
}

// Create records a fresh pending download.
func (s *DownloadStore) Create(ctx context.Context, mediaItemID int64, title, sourceRef string, qualityID int, clientJobID string) (*Download, error) {
	d := &Download{
		ID:          uuid.NewString(),
		MediaItemID: mediaItemID,
		Title:       title,
		SourceRef:   sourceRef,
		QualityID:   qualityID,
		Status:      DownloadPending,
		ClientJobID: clientJobID,
		AddedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (id, media_item_id, title, source_ref, quality_id, status, client_job_id, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MediaItemID, d.Title, d.SourceRef, d.QualityID, string(d.Status), d.ClientJobID, d.AddedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}
	return d, nil
}

// ListByStatus returns downloads in the given state, oldest first.
func (s *DownloadStore) ListByStatus(ctx context.Context, status DownloadStatus) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_item_id, title, source_ref, quality_id, status, client_job_id, save_path, error, added_at, completed_at
		FROM downloads WHERE status = ? ORDER BY added_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// HasPending reports whether the item already has an in-flight download.
func (s *DownloadStore) HasPending(ctx context.Context, mediaItemID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM downloads WHERE media_item_id = ? AND status IN (?, ?)`,
		mediaItemID, string(DownloadPending), string(DownloadCompleted)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count pending downloads: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted moves a pending download to completed and remembers where
// the client put it.
func (s *DownloadStore) MarkCompleted(ctx context.Context, id, savePath string) error {
	return s.setStatus(ctx, id, DownloadCompleted, savePath, "")
}

// MarkFailed records a download failure.
func (s *DownloadStore) MarkFailed(ctx context.Context, id, message string) error {
	return s.setStatus(ctx, id, DownloadFailed, "", message)
}

// MarkImported finishes a completed download whose file entered the library.
func (s *DownloadStore) MarkImported(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, DownloadImported, "", "")
}

// MarkDiscarded finishes a completed download that was rejected on re-check.
func (s *DownloadStore) MarkDiscarded(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, DownloadDiscarded, "", reason)
}

func (s *DownloadStore) setStatus(ctx context.Context, id string, status DownloadStatus, savePath, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads
		SET status = ?,
		    save_path = CASE WHEN ? != '' THEN ? ELSE save_path END,
		    error = CASE WHEN ? != '' THEN ? ELSE error END,
		    completed_at = ?
		WHERE id = ?`,
		string(status), savePath, savePath, message, message, now, id)
	if err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDownloadNotFound
	}
	return nil
}

func scanDownload(rows *sql.Rows) (*Download, error) {
	var (
		d           Download
		qualityID   sql.NullInt64
		clientJobID sql.NullString
		savePath    sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	if err := rows.Scan(&d.ID, &d.MediaItemID, &d.Title, &d.SourceRef, &qualityID, &d.Status, &clientJobID, &savePath, &errMsg, &d.AddedAt, &completedAt); err != nil {
		return nil, err
	}
	if qualityID.Valid {
		d.QualityID = int(qualityID.Int64)
	}
	d.ClientJobID = clientJobID.String
	d.SavePath = savePath.String
	d.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	return &d, nil
}
