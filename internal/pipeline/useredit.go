package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/song"
)

// StageUserEdit applies previously saved user corrections, looked up by the
// song's fingerprint. Corrections are forced writes: they beat any value a
// lower-priority stage may set later.
const StageUserEdit = "useredit"

type UserEditStage struct {
	edits  core.EditStore
	logger *zap.Logger
}

func NewUserEditStage(edits core.EditStore, logger *zap.Logger) *UserEditStage {
	return &UserEditStage{edits: edits, logger: logger}
}

func (st *UserEditStage) Name() string { return StageUserEdit }

func (st *UserEditStage) Apply(ctx context.Context, s *song.Song) error {
	// The lookup key is the song's identity before any correction or lookup
	// stage has touched it. Captured on the song so new corrections are
	// stored under the exact key this lookup will compute next time.
	key := s.Fingerprint()
	s.SetEditKey(key)

	edit, err := st.edits.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load edit: %w", err)
	}
	if edit == nil {
		return nil
	}

	if edit.Artist != "" {
		s.SetProcessed(StageUserEdit, song.FieldArtist, edit.Artist, true)
	}
	if edit.Track != "" {
		s.SetProcessed(StageUserEdit, song.FieldTrack, edit.Track, true)
	}
	if edit.Album != "" {
		s.SetProcessed(StageUserEdit, song.FieldAlbum, edit.Album, true)
	}
	if edit.AlbumArtist != "" {
		s.SetProcessed(StageUserEdit, song.FieldAlbumArtist, edit.AlbumArtist, true)
	}
	s.SetCorrectedByUser()

	st.logger.Debug("Applied saved user correction",
		zap.String("artist", s.Artist()),
		zap.String("track", s.Track()))
	return nil
}
