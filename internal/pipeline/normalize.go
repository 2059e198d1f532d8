package pipeline

import (
	"context"

	"scrobblerd/internal/song"
	"scrobblerd/pkg/text"
)

// StageNormalize cleans the raw scraped fields: unicode normalization,
// whitespace collapsing, duration parsing, and splitting a combined
// "Artist - Title" string when the connector could not separate them.
const StageNormalize = "normalize"

type NormalizeStage struct{}

func NewNormalizeStage() *NormalizeStage {
	return &NormalizeStage{}
}

func (st *NormalizeStage) Name() string { return StageNormalize }

func (st *NormalizeStage) Apply(_ context.Context, s *song.Song) error {
	artist := text.CleanField(s.Raw.Artist)
	track := text.CleanField(s.Raw.Track)
	album := text.CleanField(s.Raw.Album)
	albumArtist := text.CleanField(s.Raw.AlbumArtist)

	if artist == "" && track != "" {
		if splitArtist, splitTitle, ok := text.SplitArtistTitle(track); ok {
			artist = splitArtist
			track = splitTitle
		}
	}

	if artist != "" {
		s.SetProcessed(StageNormalize, song.FieldArtist, artist, false)
	}
	if track != "" {
		s.SetProcessed(StageNormalize, song.FieldTrack, track, false)
	}
	if album != "" {
		s.SetProcessed(StageNormalize, song.FieldAlbum, album, false)
	}
	if albumArtist != "" {
		s.SetProcessed(StageNormalize, song.FieldAlbumArtist, albumArtist, false)
	}

	// Empty or unparseable durations normalize to zero, never to an
	// invalid song.
	s.SetProcessedDuration(StageNormalize, text.ParseDuration(s.Raw.Duration), false)

	return nil
}
