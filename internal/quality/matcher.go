package quality

import (
	"regexp"
	"strings"
)

// sourceTokens maps release-title tokens to quality source identifiers,
// ordered most-specific first so "webrip" wins over "web" and "bdremux"
// over "bdrip".
var sourceTokens = []struct {
	token  string
	source string
}{
	{"bdremux", "remux"},
	{"remux", "remux"},
	{"blu-ray", "bluray"},
	{"bluray", "bluray"},
	{"bdrip", "bluray"},
	{"brrip", "bluray"},
	{"webrip", "webrip"},
	{"web-dl", "webdl"},
	{"webdl", "webdl"},
	{"web", "webdl"}, // Assume WEB-DL if just "WEB"
	{"hdtv", "tv"},
	{"sdtv", "tv"},
	{"pdtv", "tv"},
	{"dsr", "tv"},
	{"dvdrip", "dvd"},
	{"dvd-r", "dvd"},
	{"dvd", "dvd"},
}

// bookFormats maps ebook format tokens to the book ranking level names.
var bookFormats = map[string]string{
	"pdf":  "PDF",
	"mobi": "MOBI",
	"epub": "EPUB",
	"azw3": "AZW3",
	"azw":  "AZW3",
}

var resolutionRe = regexp.MustCompile(`(?i)\b(480|576|720|1080|2160)[pi]\b`)

// GuessLevel guesses a quality level from a release title. Returns the level
// ID, or 0 when the title carries no recognizable quality markers (unknown
// quality, a distinct state from the lowest level).
func GuessLevel(mediaType MediaType, title string) int {
	if mediaType == MediaTypeBook {
		return guessBookLevel(title)
	}

	resolution := parseResolution(title)
	source := parseSource(title)

	if source != "" && resolution > 0 {
		for _, l := range rankings[mediaType] {
			if l.Source == source && l.Resolution == resolution {
				return l.ID
			}
		}
	}

	if resolution > 0 {
		if best := bestLevel(mediaType, func(l Level) bool { return l.Resolution == resolution }); best != nil {
			return best.ID
		}
	}

	if source != "" {
		if best := bestLevel(mediaType, func(l Level) bool { return l.Source == source }); best != nil {
			return best.ID
		}
	}

	return 0
}

func guessBookLevel(title string) int {
	lower := strings.ToLower(title)
	best := 0
	bestRank := 0
	for token, name := range bookFormats {
		if !containsToken(lower, token) {
			continue
		}
		if l, ok := LevelByName(MediaTypeBook, name); ok && l.Rank > bestRank {
			best = l.ID
			bestRank = l.Rank
		}
	}
	return best
}

func parseResolution(title string) int {
	m := resolutionRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	switch m[1] {
	case "480", "576":
		return 480
	case "720":
		return 720
	case "1080":
		return 1080
	case "2160":
		return 2160
	}
	return 0
}

func parseSource(title string) string {
	lower := strings.ToLower(title)
	for _, st := range sourceTokens {
		if containsToken(lower, st.token) {
			return st.source
		}
	}
	return ""
}

// containsToken reports whether token appears in s delimited by separators
// commonly used in release names.
func containsToken(s, token string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		beforeOK := start == 0 || isSeparator(s[start-1])
		afterOK := end == len(s) || isSeparator(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isSeparator(c byte) bool {
	switch c {
	case '.', ' ', '-', '_', '[', ']', '(', ')':
		return true
	}
	return false
}

func bestLevel(mediaType MediaType, matches func(Level) bool) *Level {
	var best *Level
	levels := rankings[mediaType]
	for i := range levels {
		l := &levels[i]
		if matches(*l) && (best == nil || l.Rank > best.Rank) {
			best = l
		}
	}
	return best
}
