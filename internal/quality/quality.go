// Package quality defines quality levels, rankings, profiles and the
// decision engine that determines whether a candidate release should be
// grabbed, should replace an existing file, or should be ignored.
package quality

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MediaType identifies which ranking a level or profile belongs to.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
	MediaTypeBook    MediaType = "book"
)

// Level represents a single quality tier within a media type's ranking.
type Level struct {
	ID         int    `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`         // "bluray", "webdl", "hdtv", "ebook", ...
	Resolution int    `json:"resolution,omitempty" yaml:"resolution,omitempty"` // 480, 720, 1080, 2160 (0 for books)
	Rank       int    `json:"rank" yaml:"rank"`                                 // Higher = better quality
}

//go:embed defaults.yaml
var defaultsYAML []byte

// defaultsFile is the shape of the embedded defaults document.
type defaultsFile struct {
	Rankings map[MediaType][]Level `yaml:"rankings"`
	Profiles []SeedProfile         `yaml:"profiles"`
}

// SeedProfile describes a stock profile seeded on first run.
type SeedProfile struct {
	Name           string    `yaml:"name"`
	MediaType      MediaType `yaml:"mediaType"`
	Cutoff         int       `yaml:"cutoff"`
	UpgradeAllowed bool      `yaml:"upgradeAllowed"`
	AllowedLevels  []int     `yaml:"allowedLevels"`
}

var (
	rankings     map[MediaType][]Level
	levelsByID   map[MediaType]map[int]Level
	seedProfiles []SeedProfile
)

func init() {
	var doc defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		panic(fmt.Sprintf("quality: invalid embedded defaults: %v", err))
	}

	rankings = doc.Rankings
	seedProfiles = doc.Profiles

	levelsByID = make(map[MediaType]map[int]Level, len(rankings))
	for mt, levels := range rankings {
		byID := make(map[int]Level, len(levels))
		for _, l := range levels {
			byID[l.ID] = l
		}
		levelsByID[mt] = byID
	}
}

// Ranking returns the ordered quality levels for a media type.
func Ranking(mediaType MediaType) []Level {
	return rankings[mediaType]
}

// LevelByID returns a level in a media type's ranking by its identity.
func LevelByID(mediaType MediaType, id int) (Level, bool) {
	l, ok := levelsByID[mediaType][id]
	return l, ok
}

// LevelByName finds a level in a media type's ranking by name.
func LevelByName(mediaType MediaType, name string) (Level, bool) {
	for _, l := range rankings[mediaType] {
		if l.Name == name {
			return l, true
		}
	}
	return Level{}, false
}

// SeedProfiles returns the stock profiles from the embedded defaults.
func SeedProfiles() []SeedProfile {
	return seedProfiles
}
