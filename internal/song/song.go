// Package song holds the mutable record for one detected track: raw scraped
// fields, pipeline-processed fields with per-field provenance, lifecycle
// flags and the fingerprint identity used for equality and storage lookups.
package song

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/pkg/fuzzy"
	"scrobblerd/pkg/text"
)

var normalizer = fuzzy.NewNormalizer()

// Field names one processed metadata slot.
type Field int

const (
	FieldArtist Field = iota
	FieldTrack
	FieldAlbum
	FieldAlbumArtist
	FieldAlbumArtURL
	FieldMusicBrainzID
)

func (f Field) String() string {
	switch f {
	case FieldArtist:
		return "artist"
	case FieldTrack:
		return "track"
	case FieldAlbum:
		return "album"
	case FieldAlbumArtist:
		return "albumArtist"
	case FieldAlbumArtURL:
		return "albumArtUrl"
	case FieldMusicBrainzID:
		return "musicBrainzId"
	default:
		return "unknown"
	}
}

// provenance tags who set a processed field. A forced write (user correction)
// beats everything; otherwise the first stage to set a field wins.
type provenance struct {
	stage  string
	forced bool
}

type processedField struct {
	value string
	set   bool
	prov  provenance
}

type durationField struct {
	value time.Duration
	set   bool
	prov  provenance
}

// Song is single-owner: one pipeline run mutates it synchronously, stage by
// stage. It needs no locking.
type Song struct {
	Raw core.RawSong

	fields   map[Field]*processedField
	duration durationField

	valid         bool
	invalid       bool
	invalidReason string

	replaying       bool
	correctedByUser bool
	albumFetched    bool
	loved           bool
	scrobbled       bool

	editKey string

	detectedAt time.Time
}

func New(raw core.RawSong) *Song {
	detectedAt := raw.Timestamp
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}
	return &Song{
		Raw: raw,
		fields: map[Field]*processedField{
			FieldArtist:        {},
			FieldTrack:         {},
			FieldAlbum:         {},
			FieldAlbumArtist:   {},
			FieldAlbumArtURL:   {},
			FieldMusicBrainzID: {},
		},
		detectedAt: detectedAt,
	}
}

// SetProcessed writes a processed field on behalf of stage. The write takes
// effect only if the field is still unset, or if force is true; a forced
// write always wins and stays forced. Returns whether the write took effect.
func (s *Song) SetProcessed(stage string, field Field, value string, force bool) bool {
	if s.invalid {
		return false
	}

	f, ok := s.fields[field]
	if !ok {
		return false
	}
	if f.set && !force {
		return false
	}
	if f.prov.forced && !force {
		return false
	}

	f.value = value
	f.set = true
	f.prov = provenance{stage: stage, forced: force}
	return true
}

// SetProcessedDuration is SetProcessed for the duration slot.
func (s *Song) SetProcessedDuration(stage string, d time.Duration, force bool) bool {
	if s.invalid {
		return false
	}
	if s.duration.set && !force {
		return false
	}

	s.duration = durationField{
		value: d,
		set:   true,
		prov:  provenance{stage: stage, forced: force},
	}
	return true
}

// SetBy reports which stage set a processed field, if any.
func (s *Song) SetBy(field Field) (stage string, forced bool, ok bool) {
	f, found := s.fields[field]
	if !found || !f.set {
		return "", false, false
	}
	return f.prov.stage, f.prov.forced, true
}

func (s *Song) effective(field Field, raw string) string {
	if f, ok := s.fields[field]; ok && f.set {
		return f.value
	}
	return raw
}

// Effective accessors: processed value if set, else the raw field.

func (s *Song) Artist() string      { return s.effective(FieldArtist, s.Raw.Artist) }
func (s *Song) Track() string       { return s.effective(FieldTrack, s.Raw.Track) }
func (s *Song) Album() string       { return s.effective(FieldAlbum, s.Raw.Album) }
func (s *Song) AlbumArtist() string { return s.effective(FieldAlbumArtist, s.Raw.AlbumArtist) }
func (s *Song) AlbumArtURL() string { return s.effective(FieldAlbumArtURL, "") }

func (s *Song) MusicBrainzID() string { return s.effective(FieldMusicBrainzID, "") }

func (s *Song) Duration() time.Duration {
	if s.duration.set {
		return s.duration.value
	}
	return text.ParseDuration(s.Raw.Duration)
}

// SetEditKey records the identity under which saved corrections are looked
// up. It is captured once, before any correction is applied, so storing and
// loading a correction always use the same key no matter what later stages
// change.
func (s *Song) SetEditKey(key string) {
	if s.editKey == "" {
		s.editKey = key
	}
}

// EditKey is the correction-store key for this song. Falls back to the
// current fingerprint when no stage captured a key.
func (s *Song) EditKey() string {
	if s.editKey != "" {
		return s.editKey
	}
	return s.Fingerprint()
}

// Position is the playback position reported by the connector at detection
// time. It is never processed, only parsed on demand.
func (s *Song) Position() time.Duration { return text.ParseDuration(s.Raw.Position) }

func (s *Song) DetectedAt() time.Time { return s.detectedAt }

// MarkValid flags the song as carrying enough metadata to report. Ignored
// once the song has been invalidated.
func (s *Song) MarkValid() {
	if s.invalid {
		return
	}
	s.valid = true
}

// MarkInvalid is a one-way transition: the song is excluded from reporting
// and every later mutation becomes a no-op.
func (s *Song) MarkInvalid(reason string) {
	if s.invalid {
		return
	}
	s.invalid = true
	s.valid = false
	s.invalidReason = reason
}

func (s *Song) IsValid() bool         { return s.valid && !s.invalid }
func (s *Song) IsInvalid() bool       { return s.invalid }
func (s *Song) InvalidReason() string { return s.invalidReason }

func (s *Song) SetReplaying(v bool) {
	if s.invalid {
		return
	}
	s.replaying = v
}

func (s *Song) SetCorrectedByUser() {
	if s.invalid {
		return
	}
	s.correctedByUser = true
}

func (s *Song) SetAlbumFetched() {
	if s.invalid {
		return
	}
	s.albumFetched = true
}

func (s *Song) SetLoved(v bool) {
	if s.invalid {
		return
	}
	s.loved = v
}

func (s *Song) SetScrobbled() {
	if s.invalid {
		return
	}
	s.scrobbled = true
}

func (s *Song) IsReplaying() bool       { return s.replaying }
func (s *Song) IsCorrectedByUser() bool { return s.correctedByUser }
func (s *Song) IsAlbumFetched() bool    { return s.albumFetched }
func (s *Song) IsLoved() bool           { return s.loved }
func (s *Song) IsScrobbled() bool       { return s.scrobbled }

// Fingerprint is the song's identity key: an md5 over the normalized
// (artist, track, album) triple of effective values. Used for equality,
// replay detection and user-correction lookups.
func (s *Song) Fingerprint() string {
	h := md5.New()
	h.Write([]byte(normalizer.NormalizeArtist(s.Artist())))
	h.Write([]byte{0})
	h.Write([]byte(normalizer.NormalizeTitle(s.Track())))
	h.Write([]byte{0})
	h.Write([]byte(normalizer.NormalizeAlbum(s.Album())))
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether two songs are the same track: the normalized triple
// matches. Governs "same song still playing" vs a genuine track change.
func (s *Song) Equal(other *Song) bool {
	if other == nil {
		return false
	}
	return s.Fingerprint() == other.Fingerprint()
}

// Info snapshots the effective metadata for backend dispatch.
func (s *Song) Info() scrobbler.SongInfo {
	return scrobbler.SongInfo{
		Artist:        s.Artist(),
		Track:         s.Track(),
		Album:         s.Album(),
		AlbumArtist:   s.AlbumArtist(),
		Duration:      s.Duration(),
		Timestamp:     s.detectedAt,
		MusicBrainzID: s.MusicBrainzID(),
		AlbumArtURL:   s.AlbumArtURL(),
		UniqueID:      s.Raw.UniqueID,
	}
}
