package pipeline

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/internal/song"
)

type fakeInfoSource struct {
	infos []*scrobbler.TrackInfo
}

func (f *fakeInfoSource) GetSongInfo(context.Context, scrobbler.SongInfo) []*scrobbler.TrackInfo {
	return f.infos
}

func TestInfoStage_EnrichesFromFirstMatch(t *testing.T) {
	source := &fakeInfoSource{infos: []*scrobbler.TrackInfo{
		nil, // failed source
		{
			ScrobblerID: "lastfm",
			Artist:      "Queen",
			Track:       "Bohemian Rhapsody",
			Album:       "A Night at the Opera",
			AlbumArtURL: "https://img.example/cover.jpg",
		},
	}}

	s := song.New(core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"})
	st := NewInfoStage(source, zap.NewNop())
	if err := st.Apply(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Album() != "A Night at the Opera" {
		t.Errorf("Album() = %q, want enriched value", s.Album())
	}
	if s.AlbumArtURL() != "https://img.example/cover.jpg" {
		t.Errorf("AlbumArtURL() = %q", s.AlbumArtURL())
	}
	if !s.IsAlbumFetched() {
		t.Error("album fetched flag should be set")
	}
}

func TestInfoStage_RejectsMismatchedLookup(t *testing.T) {
	source := &fakeInfoSource{infos: []*scrobbler.TrackInfo{
		{
			ScrobblerID: "lastfm",
			Artist:      "Completely Different",
			Track:       "Another Song Entirely",
			Album:       "Wrong Album",
		},
	}}

	s := song.New(core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"})
	st := NewInfoStage(source, zap.NewNop())
	if err := st.Apply(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Album() != "" {
		t.Errorf("mismatched lookup must not enrich, Album() = %q", s.Album())
	}
	if s.IsAlbumFetched() {
		t.Error("album fetched flag must stay unset")
	}
}

func TestInfoStage_SkipsIncompleteSongs(t *testing.T) {
	source := &fakeInfoSource{infos: []*scrobbler.TrackInfo{{Artist: "x", Track: "y", Album: "z"}}}

	s := song.New(core.RawSong{Track: "only a title"})
	st := NewInfoStage(source, zap.NewNop())
	if err := st.Apply(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.IsAlbumFetched() {
		t.Error("lookup should be skipped without artist and track")
	}
}
