package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/song"
)

// StageLLMExtract asks a language model to pull artist/track/album out of a
// messy combined title ("Artist「Official Video」TRACK (HD)") when the cheap
// separators of the normalize stage were not enough. Optional; only
// registered when an LLM provider is configured.
const StageLLMExtract = "llmextract"

type LLMExtractStage struct {
	extractor core.MetadataExtractor
	logger    *zap.Logger
}

func NewLLMExtractStage(extractor core.MetadataExtractor, logger *zap.Logger) *LLMExtractStage {
	return &LLMExtractStage{extractor: extractor, logger: logger}
}

func (st *LLMExtractStage) Name() string { return StageLLMExtract }

func (st *LLMExtractStage) Apply(ctx context.Context, s *song.Song) error {
	if s.Artist() != "" && s.Track() != "" {
		return nil
	}

	raw := s.Raw.Track
	if raw == "" {
		raw = s.Raw.Artist
	}
	if raw == "" {
		return nil
	}

	extracted, err := st.extractor.ExtractSongInfo(ctx, raw)
	if err != nil {
		return fmt.Errorf("extract song info: %w", err)
	}
	if extracted == nil || !extracted.Found {
		return nil
	}

	if extracted.Artist != "" {
		s.SetProcessed(StageLLMExtract, song.FieldArtist, extracted.Artist, false)
	}
	if extracted.Track != "" {
		s.SetProcessed(StageLLMExtract, song.FieldTrack, extracted.Track, false)
	}
	if extracted.Album != "" {
		s.SetProcessed(StageLLMExtract, song.FieldAlbum, extracted.Album, false)
	}

	st.logger.Debug("LLM extracted song metadata",
		zap.String("input", raw),
		zap.String("artist", s.Artist()),
		zap.String("track", s.Track()))
	return nil
}
