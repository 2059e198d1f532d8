package core

import (
	"context"
	"time"
)

// RawSong is one detected playback event as supplied by a connector. Fields
// are authoritative only until the pipeline overrides them.
type RawSong struct {
	Artist      string    `json:"artist"`
	Track       string    `json:"track"`
	Album       string    `json:"album"`
	AlbumArtist string    `json:"albumArtist"`
	Duration    string    `json:"duration"`
	Position    string    `json:"position"`
	UniqueID    string    `json:"uniqueId"`
	Timestamp   time.Time `json:"timestamp"`
}

// Edit is a user-applied metadata correction, stored keyed by the original
// song's fingerprint. Empty fields leave the original value alone.
type Edit struct {
	Artist      string `json:"artist"`
	Track       string `json:"track"`
	Album       string `json:"album"`
	AlbumArtist string `json:"albumArtist"`
}

func (e Edit) IsZero() bool {
	return e == Edit{}
}

// Overlay returns e with the non-empty fields of other applied on top, so a
// later correction refines an earlier one instead of discarding it.
func (e Edit) Overlay(other Edit) Edit {
	if other.Artist != "" {
		e.Artist = other.Artist
	}
	if other.Track != "" {
		e.Track = other.Track
	}
	if other.Album != "" {
		e.Album = other.Album
	}
	if other.AlbumArtist != "" {
		e.AlbumArtist = other.AlbumArtist
	}
	return e
}

// ExtractedSong is the LLM's reading of a messy combined title.
type ExtractedSong struct {
	Found  bool
	Artist string
	Track  string
	Album  string
}

type EditStore interface {
	Load(ctx context.Context, fingerprint string) (*Edit, error)
	Save(ctx context.Context, fingerprint string, edit Edit) error
	Delete(ctx context.Context, fingerprint string) error
}

type ReplayGuard interface {
	Seen(fingerprint string) bool
	Remember(fingerprint string)
	Forget(fingerprint string)
	Size() int
}

type MetadataExtractor interface {
	ExtractSongInfo(ctx context.Context, text string) (*ExtractedSong, error)
}
