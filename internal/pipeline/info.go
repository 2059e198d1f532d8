package pipeline

import (
	"context"

	"go.uber.org/zap"

	"scrobblerd/internal/scrobbler"
	"scrobblerd/internal/song"
	"scrobblerd/pkg/fuzzy"
)

// StageInfo enriches display metadata (album, album art, MBID) from backends
// that can load song info. Supplementary only: a failed lookup contributes
// nothing, and nothing here affects scrobbling correctness.
const StageInfo = "info"

// minInfoSimilarity rejects lookups that clearly describe a different track.
const minInfoSimilarity = 0.7

// SongInfoSource is the lookup side of the scrobble manager.
type SongInfoSource interface {
	GetSongInfo(ctx context.Context, song scrobbler.SongInfo) []*scrobbler.TrackInfo
}

type InfoStage struct {
	source     SongInfoSource
	normalizer *fuzzy.Normalizer
	logger     *zap.Logger
}

func NewInfoStage(source SongInfoSource, logger *zap.Logger) *InfoStage {
	return &InfoStage{
		source:     source,
		normalizer: fuzzy.NewNormalizer(),
		logger:     logger,
	}
}

func (st *InfoStage) Name() string { return StageInfo }

func (st *InfoStage) Apply(ctx context.Context, s *song.Song) error {
	if s.Artist() == "" || s.Track() == "" {
		return nil
	}

	infos := st.source.GetSongInfo(ctx, s.Info())

	for _, info := range infos {
		if info == nil || !st.matches(s, info) {
			continue
		}

		if info.Album != "" {
			s.SetProcessed(StageInfo, song.FieldAlbum, info.Album, false)
		}
		if info.AlbumArtist != "" {
			s.SetProcessed(StageInfo, song.FieldAlbumArtist, info.AlbumArtist, false)
		}
		if info.AlbumArtURL != "" {
			s.SetProcessed(StageInfo, song.FieldAlbumArtURL, info.AlbumArtURL, false)
		}
		if info.MusicBrainzID != "" {
			s.SetProcessed(StageInfo, song.FieldMusicBrainzID, info.MusicBrainzID, false)
		}
		s.SetAlbumFetched()

		st.logger.Debug("Enriched song from backend lookup",
			zap.String("scrobbler", info.ScrobblerID),
			zap.String("album", s.Album()))
		break
	}

	return nil
}

func (st *InfoStage) matches(s *song.Song, info *scrobbler.TrackInfo) bool {
	artistSim := st.normalizer.CalculateSimilarity(
		st.normalizer.NormalizeArtist(s.Artist()),
		st.normalizer.NormalizeArtist(info.Artist))
	trackSim := st.normalizer.CalculateSimilarity(
		st.normalizer.NormalizeTitle(s.Track()),
		st.normalizer.NormalizeTitle(info.Track))
	return artistSim >= minInfoSimilarity && trackSim >= minInfoSimilarity
}
