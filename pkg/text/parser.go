// Package text provides cleanup and parsing helpers for raw scraped song fields.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	zeroWidthRegex  = regexp.MustCompile("[\u200B\u200C\u200D\u2060\uFEFF]")
	digitsRegex     = regexp.MustCompile(`^\d+$`)

	// Separators commonly used between artist and title in page titles,
	// ordered by how unambiguous they are.
	artistTitleSeparators = []string{" -- ", " — ", " – ", " - ", " | ", ": "}
)

// CleanField normalizes one scraped metadata field: unicode normalization,
// zero-width character removal, whitespace collapsing.
func CleanField(text string) string {
	text = norm.NFKC.String(text)
	text = zeroWidthRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ParseDuration parses clock-style duration strings as scraped from players:
// "h:mm:ss", "mm:ss" or plain seconds, with an optional leading sign and
// surrounding whitespace. Empty or unparseable input yields 0, never an error;
// scraped duration fields are garbage often enough that callers treat absence
// and junk the same way.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	var seconds int64
	for _, part := range parts {
		if !digitsRegex.MatchString(part) {
			return 0
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}

	if negative {
		seconds = -seconds
	}
	return time.Duration(seconds) * time.Second
}

// SplitArtistTitle splits a combined "Artist - Title" string on the first
// recognized separator. Returns ok=false when no separator is present or a
// side would be empty.
func SplitArtistTitle(text string) (artist, title string, ok bool) {
	for _, sep := range artistTitleSeparators {
		idx := strings.Index(text, sep)
		if idx < 0 {
			continue
		}
		artist = strings.TrimSpace(text[:idx])
		title = strings.TrimSpace(text[idx+len(sep):])
		if artist == "" || title == "" {
			return "", "", false
		}
		return artist, title, true
	}
	return "", "", false
}
