package pipeline

import (
	"context"

	"scrobblerd/internal/song"
)

// StageValidate runs last: a song that still has no artist or track after
// every enrichment stage had its chance cannot be reported anywhere.
const StageValidate = "validate"

type ValidateStage struct{}

func NewValidateStage() *ValidateStage {
	return &ValidateStage{}
}

func (st *ValidateStage) Name() string { return StageValidate }

func (st *ValidateStage) Apply(_ context.Context, s *song.Song) error {
	if s.Artist() == "" || s.Track() == "" {
		s.MarkInvalid("missing artist or track")
		return nil
	}
	s.MarkValid()
	return nil
}
