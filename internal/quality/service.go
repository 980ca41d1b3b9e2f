package quality

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service provides quality profile management backed by SQLite.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new quality service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "quality").Logger(),
	}
}

// Seed inserts the stock profiles from the embedded defaults if no profiles
// exist yet. Safe to call on every startup.
func (s *Service) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quality_profiles`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count quality profiles: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, seed := range SeedProfiles() {
		items := buildItems(seed.MediaType, seed.AllowedLevels)
		_, err := s.Create(ctx, CreateProfileInput{
			MediaType:      seed.MediaType,
			Name:           seed.Name,
			Cutoff:         seed.Cutoff,
			UpgradeAllowed: seed.UpgradeAllowed,
			Items:          items,
		})
		if err != nil {
			return fmt.Errorf("failed to seed profile %q: %w", seed.Name, err)
		}
	}

	s.logger.Info().Int("profiles", len(SeedProfiles())).Msg("Seeded default quality profiles")
	return nil
}

// buildItems expands a ranking into profile items with the given levels allowed.
func buildItems(mediaType MediaType, allowed []int) []ProfileItem {
	allowedSet := make(map[int]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}
	levels := Ranking(mediaType)
	items := make([]ProfileItem, len(levels))
	for i, l := range levels {
		items[i] = ProfileItem{Level: l, Allowed: allowedSet[l.ID]}
	}
	return items
}

// List returns all quality profiles.
func (s *Service) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_type, name, cutoff, upgrade_allowed, items, created_at, updated_at
		FROM quality_profiles ORDER BY media_type, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Get returns a single quality profile by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, media_type, name, cutoff, upgrade_allowed, items, created_at, updated_at
		FROM quality_profiles WHERE id = ?`, id)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create creates a new quality profile. The profile is validated before it
// is stored so an unusable profile can never enter the database.
func (s *Service) Create(ctx context.Context, input CreateProfileInput) (*Profile, error) {
	p := &Profile{
		MediaType:      input.MediaType,
		Name:           input.Name,
		Cutoff:         input.Cutoff,
		UpgradeAllowed: input.UpgradeAllowed,
		Items:          input.Items,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	itemsJSON, err := SerializeItems(p.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize profile items: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_profiles (media_type, name, cutoff, upgrade_allowed, items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(p.MediaType), p.Name, p.Cutoff, p.UpgradeAllowed, itemsJSON, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create quality profile: %w", err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	s.logger.Info().Int64("id", p.ID).Str("name", p.Name).Str("mediaType", string(p.MediaType)).Msg("Created quality profile")
	return p, nil
}

// Update updates an existing quality profile.
func (s *Service) Update(ctx context.Context, id int64, input UpdateProfileInput) (*Profile, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Cutoff = input.Cutoff
	existing.UpgradeAllowed = input.UpgradeAllowed
	existing.Items = input.Items
	if err := existing.Validate(); err != nil {
		return nil, err
	}

	itemsJSON, err := SerializeItems(existing.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize profile items: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE quality_profiles
		SET name = ?, cutoff = ?, upgrade_allowed = ?, items = ?, updated_at = ?
		WHERE id = ?`,
		existing.Name, existing.Cutoff, existing.UpgradeAllowed, itemsJSON, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update quality profile: %w", err)
	}
	existing.UpdatedAt = now

	s.logger.Info().Int64("id", id).Str("name", existing.Name).Msg("Updated quality profile")
	return existing, nil
}

// Delete removes a quality profile.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quality_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quality profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}

	s.logger.Info().Int64("id", id).Msg("Deleted quality profile")
	return nil
}

// LoadProfile loads a profile for decision making. Read-only alias kept for
// the decision-engine collaborator contract.
func (s *Service) LoadProfile(ctx context.Context, id int64) (*Profile, error) {
	return s.Get(ctx, id)
}

// LoadRanking returns the ordered quality levels for a media type.
func (s *Service) LoadRanking(_ context.Context, mediaType MediaType) []Level {
	return Ranking(mediaType)
}

// scanner abstracts sql.Row and sql.Rows for scanProfile.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var (
		p         Profile
		mediaType string
		itemsJSON string
	)
	if err := row.Scan(&p.ID, &mediaType, &p.Name, &p.Cutoff, &p.UpgradeAllowed, &itemsJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.MediaType = MediaType(mediaType)

	items, err := DeserializeItems(itemsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize profile items: %w", err)
	}
	p.Items = items
	return &p, nil
}
