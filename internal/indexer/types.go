// Package indexer talks to an aggregated release index over its REST API
// and turns raw results into quality-tagged candidates.
package indexer

import (
	"time"

	"github.com/driftwood/driftwood/internal/quality"
)

// Standard category IDs used when searching.
const (
	categoryMovies = 2000
	categoryTV     = 5000
	categoryBooks  = 7000
)

// SearchRequest describes one search against the index.
type SearchRequest struct {
	MediaType quality.MediaType
	Query     string
	Limit     int
}

// CandidateRelease is one search result, tagged with the quality level
// guessed from its title. QualityID 0 means the title was unparseable.
type CandidateRelease struct {
	Title       string    `json:"title"`
	SourceRef   string    `json:"sourceRef"`
	Indexer     string    `json:"indexer"`
	QualityID   int       `json:"qualityId"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"`
	PublishDate time.Time `json:"publishDate"`
}

// IndexerInfo describes one indexer configured upstream. Refreshed by the
// periodic index sync.
type IndexerInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
	Healthy  bool   `json:"healthy"`
}

// ConnectionStatus reports reachability of the upstream index.
type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	Version     string     `json:"version,omitempty"`
	Error       string     `json:"error,omitempty"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}
