package quality

import (
	"encoding/json"
	"errors"
	"time"
)

// Profile errors.
var (
	ErrProfileNotFound = errors.New("quality profile not found")
	ErrEmptyProfile    = errors.New("quality profile allows no levels")
	ErrCutoffExcluded  = errors.New("quality profile cutoff is not an allowed level")
)

// ProfileItem represents a level in a profile with its allowed status.
type ProfileItem struct {
	Level   Level `json:"level"`
	Allowed bool  `json:"allowed"`
}

// Profile selects a subset of a media type's ranking, a cutoff and an
// upgrade policy. The cutoff marks "good enough, stop upgrading".
type Profile struct {
	ID             int64         `json:"id"`
	MediaType      MediaType     `json:"mediaType"`
	Name           string        `json:"name"`
	Cutoff         int           `json:"cutoff"` // Level ID at which upgrades stop
	UpgradeAllowed bool          `json:"upgradeAllowed"`
	Items          []ProfileItem `json:"items"` // Ordered list of levels
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// CreateProfileInput is used when creating a new profile.
type CreateProfileInput struct {
	MediaType      MediaType     `json:"mediaType"`
	Name           string        `json:"name"`
	Cutoff         int           `json:"cutoff"`
	UpgradeAllowed bool          `json:"upgradeAllowed"`
	Items          []ProfileItem `json:"items"`
}

// UpdateProfileInput is used when updating a profile.
type UpdateProfileInput struct {
	Name           string        `json:"name"`
	Cutoff         int           `json:"cutoff"`
	UpgradeAllowed bool          `json:"upgradeAllowed"`
	Items          []ProfileItem `json:"items"`
}

// Validate checks the structural invariants a profile must satisfy before it
// can be used for decisions. A profile that allows no levels, or whose cutoff
// is not among the allowed levels, is a configuration error: the engine never
// silently accepts everything.
func (p *Profile) Validate() error {
	anyAllowed := false
	cutoffAllowed := false
	for _, item := range p.Items {
		if !item.Allowed {
			continue
		}
		anyAllowed = true
		if item.Level.ID == p.Cutoff {
			cutoffAllowed = true
		}
	}
	if !anyAllowed {
		return ErrEmptyProfile
	}
	if !cutoffAllowed {
		return ErrCutoffExcluded
	}
	return nil
}

// IsAllowed reports whether a level is allowed by this profile.
func (p *Profile) IsAllowed(levelID int) bool {
	for _, item := range p.Items {
		if item.Level.ID == levelID && item.Allowed {
			return true
		}
	}
	return false
}

// CutoffRank returns the global rank of the profile's cutoff level.
func (p *Profile) CutoffRank() int {
	if l, ok := LevelByID(p.MediaType, p.Cutoff); ok {
		return l.Rank
	}
	return 0
}

// SerializeItems converts profile items to JSON for database storage.
func SerializeItems(items []ProfileItem) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeserializeItems parses JSON profile items from database storage.
func DeserializeItems(data string) ([]ProfileItem, error) {
	var items []ProfileItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, err
	}
	return items, nil
}
