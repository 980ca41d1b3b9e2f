package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/quality"
)

// Service provides catalog access backed by SQLite.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new library service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// CreateItem adds a media item to the library.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (*MediaItem, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media_items (media_type, title, year, monitored, quality_profile_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(input.MediaType), input.Title, nullableInt(input.Year), input.Monitored, input.QualityProfileID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create media item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	item := &MediaItem{
		ID:               id,
		MediaType:        input.MediaType,
		Title:            input.Title,
		Year:             input.Year,
		Monitored:        input.Monitored,
		QualityProfileID: input.QualityProfileID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.logger.Info().Int64("id", id).Str("title", item.Title).Msg("Added media item")
	return item, nil
}

// GetItem returns a media item by ID.
func (s *Service) GetItem(ctx context.Context, id int64) (*MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, media_type, title, year, monitored, quality_profile_id, created_at, updated_at
		FROM media_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// ListItems returns all media items.
func (s *Service) ListItems(ctx context.Context) ([]*MediaItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_type, title, year, monitored, quality_profile_id, created_at, updated_at
		FROM media_items ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListWanted returns every monitored item together with its current file
// state. Items whose file already satisfies their profile are filtered out
// by the acquisition pass, not here.
func (s *Service) ListWanted(ctx context.Context) ([]WantedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_type, title, year, monitored, quality_profile_id, created_at, updated_at
		FROM media_items WHERE monitored = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wanted items: %w", err)
	}
	defer rows.Close()

	var wanted []WantedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		wanted = append(wanted, WantedItem{Item: *item})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range wanted {
		file, err := s.CurrentFile(ctx, wanted[i].Item.ID)
		if err != nil {
			return nil, err
		}
		wanted[i].CurrentFile = file
	}
	return wanted, nil
}

// CurrentFile returns the best file currently held for an item, or nil when
// the item has none. With several file rows the one with the highest quality
// rank wins; unknown quality ranks below everything.
func (s *Service) CurrentFile(ctx context.Context, itemID int64) (*MediaFile, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_item_id, relative_path, size_bytes, quality_id, added_at
		FROM media_files WHERE media_item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load media files: %w", err)
	}
	defer rows.Close()

	var best *MediaFile
	bestRank := -1
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		rank := 0
		if l, ok := quality.LevelByID(item.MediaType, f.QualityID); ok {
			rank = l.Rank
		}
		if best == nil || rank > bestRank {
			best = f
			bestRank = rank
		}
	}
	return best, rows.Err()
}

// AddFile records a new file for an item.
func (s *Service) AddFile(ctx context.Context, input AddFileInput) (*MediaFile, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media_files (media_item_id, relative_path, size_bytes, quality_id, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		input.MediaItemID, input.RelativePath, input.SizeBytes, nullableInt(input.QualityID), now)
	if err != nil {
		return nil, fmt.Errorf("failed to add media file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	file := &MediaFile{
		ID:           id,
		MediaItemID:  input.MediaItemID,
		RelativePath: input.RelativePath,
		SizeBytes:    input.SizeBytes,
		QualityID:    input.QualityID,
		AddedAt:      now,
	}
	s.logger.Info().Int64("itemId", input.MediaItemID).Str("path", input.RelativePath).Msg("Added media file")
	return file, nil
}

// ReplaceFile removes a superseded file row and records its replacement in
// one transaction.
func (s *Service) ReplaceFile(ctx context.Context, supersededFileID int64, input AddFileInput) (*MediaFile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, supersededFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove superseded file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrFileNotFound
	}

	now := time.Now().UTC()
	ins, err := tx.ExecContext(ctx, `
		INSERT INTO media_files (media_item_id, relative_path, size_bytes, quality_id, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		input.MediaItemID, input.RelativePath, input.SizeBytes, nullableInt(input.QualityID), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert replacement file: %w", err)
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit file replacement: %w", err)
	}

	s.logger.Info().
		Int64("itemId", input.MediaItemID).
		Int64("supersededFileId", supersededFileID).
		Str("path", input.RelativePath).
		Msg("Replaced media file")

	return &MediaFile{
		ID:           id,
		MediaItemID:  input.MediaItemID,
		RelativePath: input.RelativePath,
		SizeBytes:    input.SizeBytes,
		QualityID:    input.QualityID,
		AddedAt:      now,
	}, nil
}

// RefreshFileQualities re-guesses the quality of files recorded with an
// unknown quality from their paths. Used by the metadata-refresh task;
// files imported before the matcher learned their naming get another shot.
func (s *Service) RefreshFileQualities(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.relative_path, i.media_type
		FROM media_files f
		JOIN media_items i ON i.id = f.media_item_id
		WHERE f.quality_id IS NULL OR f.quality_id = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to list untagged files: %w", err)
	}

	type untagged struct {
		id        int64
		path      string
		mediaType quality.MediaType
	}
	var files []untagged
	for rows.Next() {
		var (
			u  untagged
			mt string
		)
		if err := rows.Scan(&u.id, &u.path, &mt); err != nil {
			rows.Close()
			return 0, err
		}
		u.mediaType = quality.MediaType(mt)
		files = append(files, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	updated := 0
	for _, f := range files {
		levelID := quality.GuessLevel(f.mediaType, f.path)
		if levelID == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE media_files SET quality_id = ? WHERE id = ?`, levelID, f.id); err != nil {
			return updated, fmt.Errorf("failed to retag file %d: %w", f.id, err)
		}
		updated++
		s.logger.Info().Str("path", f.path).Int("qualityId", levelID).Msg("Re-tagged file quality")
	}
	return updated, nil
}

// Scan reconciles file rows against the filesystem: rows whose path no
// longer exists under rootDir are removed. Used by the library-scan task.
func (s *Service) Scan(ctx context.Context, rootDir string) (*ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_item_id, relative_path, size_bytes, quality_id, added_at
		FROM media_files`)
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}

	var files []*MediaFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := &ScanResult{}
	for _, f := range files {
		result.FilesChecked++
		if _, err := os.Stat(filepath.Join(rootDir, f.RelativePath)); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, f.ID); err != nil {
			return nil, fmt.Errorf("failed to remove missing file row: %w", err)
		}
		result.FilesRemoved++
		s.logger.Info().Str("path", f.RelativePath).Msg("Removed file record for missing file")
	}

	return result, nil
}

func nullableInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*MediaItem, error) {
	var (
		item      MediaItem
		mediaType string
		year      sql.NullInt64
	)
	if err := row.Scan(&item.ID, &mediaType, &item.Title, &year, &item.Monitored, &item.QualityProfileID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.MediaType = quality.MediaType(mediaType)
	if year.Valid {
		item.Year = int(year.Int64)
	}
	return &item, nil
}

func scanFile(row rowScanner) (*MediaFile, error) {
	var (
		f         MediaFile
		qualityID sql.NullInt64
	)
	if err := row.Scan(&f.ID, &f.MediaItemID, &f.RelativePath, &f.SizeBytes, &qualityID, &f.AddedAt); err != nil {
		return nil, err
	}
	if qualityID.Valid {
		f.QualityID = int(qualityID.Int64)
	}
	return &f, nil
}
