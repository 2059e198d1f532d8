// Package controller glues the processing pipeline, the replay guard, the
// correction store and the scrobbler manager into the operations the HTTP
// layer exposes.
package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/pipeline"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/internal/song"
)

// Dispatcher is the slice of the scrobbler manager the controller needs.
type Dispatcher interface {
	SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) scrobbler.Results
	Scrobble(ctx context.Context, song scrobbler.SongInfo) scrobbler.Results
	ScrobbleWith(ctx context.Context, song scrobbler.SongInfo, ids []string) (scrobbler.Results, error)
	ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) scrobbler.Results
}

type Controller struct {
	logger     *zap.Logger
	processor  *pipeline.Processor
	dispatcher Dispatcher
	replay     core.ReplayGuard
	edits      core.EditStore
}

func New(logger *zap.Logger, processor *pipeline.Processor, dispatcher Dispatcher, replay core.ReplayGuard, edits core.EditStore) *Controller {
	return &Controller{
		logger:     logger,
		processor:  processor,
		dispatcher: dispatcher,
		replay:     replay,
		edits:      edits,
	}
}

// SongView is the processed song as reported back to the caller.
type SongView struct {
	Artist        string `json:"artist"`
	Track         string `json:"track"`
	Album         string `json:"album,omitempty"`
	AlbumArtist   string `json:"albumArtist,omitempty"`
	AlbumArtURL   string `json:"albumArtUrl,omitempty"`
	DurationSec   int    `json:"durationSec,omitempty"`
	Fingerprint   string `json:"fingerprint"`
	Corrected     bool   `json:"correctedByUser,omitempty"`
	AlbumFetched  bool   `json:"albumFetched,omitempty"`
	Replaying     bool   `json:"replaying,omitempty"`
	Scrobbled     bool   `json:"scrobbled,omitempty"`
	Loved         bool   `json:"loved,omitempty"`
	Valid         bool   `json:"valid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// ResultView is one backend's outcome in caller-facing form.
type ResultView struct {
	ScrobblerID string `json:"scrobblerId"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Outcome is the aggregate response of one controller operation.
type Outcome struct {
	Song      SongView     `json:"song"`
	Duplicate bool         `json:"duplicate,omitempty"`
	Results   []ResultView `json:"results,omitempty"`
}

// NowPlaying runs the pipeline and forwards a now-playing notice to every
// bound backend. A song already remembered by the replay guard is still
// forwarded but flagged as replaying.
func (c *Controller) NowPlaying(ctx context.Context, raw core.RawSong) (*Outcome, error) {
	s := c.processor.Process(ctx, raw)
	if s.IsInvalid() {
		return c.invalidOutcome(s), nil
	}

	if c.replay.Seen(s.Fingerprint()) {
		s.SetReplaying(true)
	}

	results := c.dispatcher.SendNowPlaying(ctx, s.Info())
	c.logResults("now playing", s, results)
	return c.outcome(s, false, results), nil
}

// Scrobble runs the pipeline, suppresses duplicates, and submits the listen
// to every bound backend. Any single success marks the song scrobbled and
// remembers its fingerprint.
func (c *Controller) Scrobble(ctx context.Context, raw core.RawSong) (*Outcome, error) {
	s := c.processor.Process(ctx, raw)
	if s.IsInvalid() {
		return c.invalidOutcome(s), nil
	}

	fp := s.Fingerprint()
	if c.replay.Seen(fp) {
		s.SetReplaying(true)
		c.logger.Debug("Duplicate scrobble suppressed", zap.String("fingerprint", fp))
		return c.outcome(s, true, nil), nil
	}

	results := c.dispatcher.Scrobble(ctx, s.Info())
	c.logResults("scrobble", s, results)

	if anyOK(results) {
		s.SetScrobbled()
		c.replay.Remember(fp)
	}
	return c.outcome(s, false, results), nil
}

// Love toggles the love state on every registered backend that supports it.
func (c *Controller) Love(ctx context.Context, raw core.RawSong, loved bool) (*Outcome, error) {
	s := c.processor.Process(ctx, raw)
	if s.IsInvalid() {
		return c.invalidOutcome(s), nil
	}

	results := c.dispatcher.ToggleLove(ctx, s.Info(), loved)
	c.logResults("love", s, results)

	if anyOK(results) {
		s.SetLoved(loved)
	}
	return c.outcome(s, false, results), nil
}

// Correct stores a user edit keyed by the song's pre-correction identity and
// re-processes it so the edit takes effect. The key comes from the pipeline's
// own lookup point, not from the fully processed song: corrections and later
// stages change the fingerprint, and the edit must live where the next lookup
// will search for it. The old fingerprint is dropped from the replay guard,
// the corrected identity is a new song.
func (c *Controller) Correct(ctx context.Context, raw core.RawSong, edit core.Edit) (*Outcome, error) {
	if edit.IsZero() {
		return nil, fmt.Errorf("empty correction")
	}

	before := c.processor.Process(ctx, raw)
	key := before.EditKey()

	existing, err := c.edits.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load correction: %w", err)
	}
	if existing != nil {
		edit = existing.Overlay(edit)
	}

	if err := c.edits.Save(ctx, key, edit); err != nil {
		return nil, fmt.Errorf("save correction: %w", err)
	}
	c.replay.Forget(before.Fingerprint())

	after := c.processor.Process(ctx, raw)
	if after.IsInvalid() {
		return c.invalidOutcome(after), nil
	}

	c.logger.Info("Correction applied",
		zap.String("editKey", key),
		zap.String("artist", after.Artist()),
		zap.String("track", after.Track()))
	return c.outcome(after, false, nil), nil
}

// Retry re-submits a listen to an explicit subset of backends, typically the
// ones that failed the first time.
func (c *Controller) Retry(ctx context.Context, raw core.RawSong, ids []string) (*Outcome, error) {
	s := c.processor.Process(ctx, raw)
	if s.IsInvalid() {
		return c.invalidOutcome(s), nil
	}

	results, err := c.dispatcher.ScrobbleWith(ctx, s.Info(), ids)
	if err != nil {
		return nil, err
	}
	c.logResults("retry", s, results)

	if anyOK(results) {
		s.SetScrobbled()
		c.replay.Remember(s.Fingerprint())
	}
	return c.outcome(s, false, results), nil
}

func (c *Controller) invalidOutcome(s *song.Song) *Outcome {
	c.logger.Debug("Song rejected as invalid",
		zap.String("reason", s.InvalidReason()),
		zap.String("rawArtist", s.Raw.Artist),
		zap.String("rawTrack", s.Raw.Track))
	return c.outcome(s, false, nil)
}

func (c *Controller) outcome(s *song.Song, duplicate bool, results scrobbler.Results) *Outcome {
	out := &Outcome{
		Song: SongView{
			Artist:        s.Artist(),
			Track:         s.Track(),
			Album:         s.Album(),
			AlbumArtist:   s.AlbumArtist(),
			AlbumArtURL:   s.AlbumArtURL(),
			DurationSec:   int(s.Duration().Seconds()),
			Fingerprint:   s.Fingerprint(),
			Corrected:     s.IsCorrectedByUser(),
			AlbumFetched:  s.IsAlbumFetched(),
			Replaying:     s.IsReplaying(),
			Scrobbled:     s.IsScrobbled(),
			Loved:         s.IsLoved(),
			Valid:         s.IsValid(),
			InvalidReason: s.InvalidReason(),
		},
		Duplicate: duplicate,
	}
	for _, r := range results {
		rv := ResultView{ScrobblerID: r.ScrobblerID, Status: r.Kind.String()}
		if r.Err != nil {
			rv.Error = r.Err.Error()
		}
		out.Results = append(out.Results, rv)
	}
	return out
}

func (c *Controller) logResults(op string, s *song.Song, results scrobbler.Results) {
	for _, r := range results.Failed() {
		c.logger.Warn("Backend call failed",
			zap.String("op", op),
			zap.String("scrobbler", r.ScrobblerID),
			zap.String("kind", r.Kind.String()),
			zap.Error(r.Err))
	}
	c.logger.Debug("Dispatch settled",
		zap.String("op", op),
		zap.String("artist", s.Artist()),
		zap.String("track", s.Track()),
		zap.Int("targets", len(results)),
		zap.Int("failed", len(results.Failed())))
}

func anyOK(results scrobbler.Results) bool {
	for _, r := range results {
		if r.OK() {
			return true
		}
	}
	return false
}
