// Package library manages the catalog of media items and their files.
package library

import (
	"errors"
	"time"

	"github.com/driftwood/driftwood/internal/quality"
)

// Library errors.
var (
	ErrItemNotFound = errors.New("media item not found")
	ErrFileNotFound = errors.New("media file not found")
)

// MediaItem is a logical unit of the library: a movie, an episode or a book.
type MediaItem struct {
	ID               int64             `json:"id"`
	MediaType        quality.MediaType `json:"mediaType"`
	Title            string            `json:"title"`
	Year             int               `json:"year,omitempty"`
	Monitored        bool              `json:"monitored"`
	QualityProfileID int64             `json:"qualityProfileId"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// MediaFile is a file held for a media item. QualityID 0 means the quality
// could not be determined, which is distinct from the lowest level.
type MediaFile struct {
	ID           int64     `json:"id"`
	MediaItemID  int64     `json:"mediaItemId"`
	RelativePath string    `json:"relativePath"`
	SizeBytes    int64     `json:"sizeBytes"`
	QualityID    int       `json:"qualityId,omitempty"`
	AddedAt      time.Time `json:"addedAt"`
}

// WantedItem pairs a monitored item with its current file state for the
// acquisition pass. CurrentFile is nil when the item has no file.
type WantedItem struct {
	Item        MediaItem  `json:"item"`
	CurrentFile *MediaFile `json:"currentFile,omitempty"`
}

// CreateItemInput is used when adding an item to the library.
type CreateItemInput struct {
	MediaType        quality.MediaType `json:"mediaType"`
	Title            string            `json:"title"`
	Year             int               `json:"year,omitempty"`
	Monitored        bool              `json:"monitored"`
	QualityProfileID int64             `json:"qualityProfileId"`
}

// AddFileInput is used when importing a file for an item.
type AddFileInput struct {
	MediaItemID  int64  `json:"mediaItemId"`
	RelativePath string `json:"relativePath"`
	SizeBytes    int64  `json:"sizeBytes"`
	QualityID    int    `json:"qualityId,omitempty"`
}

// ScanResult summarizes a library scan pass.
type ScanResult struct {
	FilesChecked int `json:"filesChecked"`
	FilesRemoved int `json:"filesRemoved"`
}
