package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/pipeline"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/internal/song"
	"scrobblerd/internal/store"
)

type fakeDispatcher struct {
	results  scrobbler.Results
	withErr  error
	calls    []string
	lastSong scrobbler.SongInfo
	lastIDs  []string
}

func (d *fakeDispatcher) SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) scrobbler.Results {
	d.calls = append(d.calls, "nowplaying")
	d.lastSong = song
	return d.results
}

func (d *fakeDispatcher) Scrobble(ctx context.Context, song scrobbler.SongInfo) scrobbler.Results {
	d.calls = append(d.calls, "scrobble")
	d.lastSong = song
	return d.results
}

func (d *fakeDispatcher) ScrobbleWith(ctx context.Context, song scrobbler.SongInfo, ids []string) (scrobbler.Results, error) {
	d.calls = append(d.calls, "scrobblewith")
	d.lastSong = song
	d.lastIDs = ids
	return d.results, d.withErr
}

func (d *fakeDispatcher) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) scrobbler.Results {
	d.calls = append(d.calls, "love")
	d.lastSong = song
	return d.results
}

type memEditStore struct {
	mu    sync.Mutex
	edits map[string]core.Edit
}

func newMemEditStore() *memEditStore {
	return &memEditStore{edits: make(map[string]core.Edit)}
}

func (m *memEditStore) Load(ctx context.Context, fp string) (*core.Edit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.edits[fp]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memEditStore) Save(ctx context.Context, fp string, edit core.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[fp] = edit
	return nil
}

func (m *memEditStore) Delete(ctx context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edits, fp)
	return nil
}

func newTestController(t *testing.T, d Dispatcher) (*Controller, *store.ReplayGuard, *memEditStore) {
	t.Helper()

	logger := zap.NewNop()
	edits := newMemEditStore()
	replay := store.NewReplayGuard(100, 0.001)

	proc := pipeline.NewProcessor(logger)
	proc.Register(pipeline.PriorityNormalize, pipeline.NewNormalizeStage())
	proc.Register(pipeline.PriorityUserEdit, pipeline.NewUserEditStage(edits, logger))
	proc.Register(pipeline.PriorityValidate, pipeline.NewValidateStage())

	return New(logger, proc, d, replay, edits), replay, edits
}

func okResults(ids ...string) scrobbler.Results {
	var rs scrobbler.Results
	for _, id := range ids {
		rs = append(rs, scrobbler.Result{ScrobblerID: id, Kind: scrobbler.KindOK})
	}
	return rs
}

func TestScrobbleMarksAndRemembers(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm", "maloja")}
	c, replay, _ := newTestController(t, d)

	raw := core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"}
	out, err := c.Scrobble(context.Background(), raw)
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if !out.Song.Scrobbled {
		t.Error("song should be marked scrobbled")
	}
	if len(out.Results) != 2 {
		t.Errorf("results = %+v", out.Results)
	}
	if !replay.Seen(out.Song.Fingerprint) {
		t.Error("fingerprint should be remembered after a successful scrobble")
	}
}

func TestScrobbleSuppressesDuplicates(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm")}
	c, _, _ := newTestController(t, d)
	raw := core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"}

	if _, err := c.Scrobble(context.Background(), raw); err != nil {
		t.Fatalf("first scrobble: %v", err)
	}

	out, err := c.Scrobble(context.Background(), raw)
	if err != nil {
		t.Fatalf("second scrobble: %v", err)
	}
	if !out.Duplicate {
		t.Error("second submission should be a duplicate")
	}
	if !out.Song.Replaying {
		t.Error("duplicate should carry the replaying flag")
	}
	if len(d.calls) != 1 {
		t.Errorf("dispatcher calls = %v, want a single scrobble", d.calls)
	}
}

func TestScrobbleAllFailedIsNotRemembered(t *testing.T) {
	d := &fakeDispatcher{results: scrobbler.Results{
		{ScrobblerID: "lastfm", Kind: scrobbler.KindOther, Err: errors.New("down")},
	}}
	c, replay, _ := newTestController(t, d)

	out, err := c.Scrobble(context.Background(), core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"})
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if out.Song.Scrobbled {
		t.Error("song must not be marked scrobbled when every backend failed")
	}
	if replay.Seen(out.Song.Fingerprint) {
		t.Error("failed scrobble must stay retryable")
	}
	if out.Results[0].Error == "" {
		t.Error("failed result should carry the error text")
	}
}

func TestScrobblePartialFailureStillRemembers(t *testing.T) {
	d := &fakeDispatcher{results: scrobbler.Results{
		{ScrobblerID: "lastfm", Kind: scrobbler.KindOK},
		{ScrobblerID: "maloja", Kind: scrobbler.KindOther, Err: errors.New("down")},
	}}
	c, replay, _ := newTestController(t, d)

	out, err := c.Scrobble(context.Background(), core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"})
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if !out.Song.Scrobbled || !replay.Seen(out.Song.Fingerprint) {
		t.Error("one success is enough to mark and remember the song")
	}
}

func TestInvalidSongIsNotDispatched(t *testing.T) {
	d := &fakeDispatcher{}
	c, _, _ := newTestController(t, d)

	out, err := c.Scrobble(context.Background(), core.RawSong{Track: ""})
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if out.Song.Valid {
		t.Error("empty song should be invalid")
	}
	if out.Song.InvalidReason == "" {
		t.Error("invalid song should carry a reason")
	}
	if len(d.calls) != 0 {
		t.Errorf("invalid song must not be dispatched, calls = %v", d.calls)
	}
}

func TestNowPlayingFlagsReplay(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm")}
	c, replay, _ := newTestController(t, d)
	raw := core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"}

	out, err := c.NowPlaying(context.Background(), raw)
	if err != nil {
		t.Fatalf("now playing: %v", err)
	}
	if out.Song.Replaying {
		t.Error("first sighting is not a replay")
	}

	replay.Remember(out.Song.Fingerprint)

	out, err = c.NowPlaying(context.Background(), raw)
	if err != nil {
		t.Fatalf("now playing: %v", err)
	}
	if !out.Song.Replaying {
		t.Error("remembered fingerprint should flag the song as replaying")
	}
	// Replays still notify, unlike scrobbles.
	if len(d.calls) != 2 {
		t.Errorf("dispatcher calls = %v", d.calls)
	}
}

func TestLoveSetsFlag(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm")}
	c, _, _ := newTestController(t, d)

	out, err := c.Love(context.Background(), core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"}, true)
	if err != nil {
		t.Fatalf("love: %v", err)
	}
	if !out.Song.Loved {
		t.Error("song should be marked loved")
	}
}

func TestCorrectRewritesIdentity(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm")}
	c, replay, edits := newTestController(t, d)
	ctx := context.Background()
	raw := core.RawSong{Artist: "Qeen", Track: "Bohemian Rhapsody"}

	before, err := c.Scrobble(ctx, raw)
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	oldFP := before.Song.Fingerprint

	out, err := c.Correct(ctx, raw, core.Edit{Artist: "Queen"})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if out.Song.Artist != "Queen" {
		t.Errorf("corrected artist = %q", out.Song.Artist)
	}
	if !out.Song.Corrected {
		t.Error("corrected song should carry the user-correction flag")
	}
	if out.Song.Fingerprint == oldFP {
		t.Error("a correction that changes the artist must change the fingerprint")
	}
	if replay.Seen(oldFP) {
		t.Error("old fingerprint should be forgotten")
	}
	if saved, _ := edits.Load(ctx, oldFP); saved == nil || saved.Artist != "Queen" {
		t.Errorf("edit not persisted under the old fingerprint, got %+v", saved)
	}
}

// albumFillStage stands in for a lookup stage that enriches the album after
// corrections ran, which shifts the song's final fingerprint.
type albumFillStage struct{}

func (albumFillStage) Name() string { return "albumfill" }

func (albumFillStage) Apply(_ context.Context, s *song.Song) error {
	s.SetProcessed("albumfill", song.FieldAlbum, "A Night at the Opera", false)
	return nil
}

func TestCorrectSurvivesAlbumEnrichment(t *testing.T) {
	logger := zap.NewNop()
	edits := newMemEditStore()
	d := &fakeDispatcher{results: okResults("lastfm")}

	proc := pipeline.NewProcessor(logger)
	proc.Register(pipeline.PriorityNormalize, pipeline.NewNormalizeStage())
	proc.Register(pipeline.PriorityUserEdit, pipeline.NewUserEditStage(edits, logger))
	proc.Register(pipeline.PriorityInfo, albumFillStage{})
	proc.Register(pipeline.PriorityValidate, pipeline.NewValidateStage())

	c := New(logger, proc, d, store.NewReplayGuard(100, 0.001), edits)
	ctx := context.Background()
	raw := core.RawSong{Artist: "Qeen", Track: "Bohemian Rhapsody"}

	out, err := c.Correct(ctx, raw, core.Edit{Artist: "Queen"})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if out.Song.Artist != "Queen" {
		t.Errorf("re-processed artist = %q, want %q", out.Song.Artist, "Queen")
	}

	// The correction must also hit later submissions of the same raw song,
	// even though the enriched album changed the final fingerprint.
	out, err = c.Scrobble(ctx, raw)
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if out.Song.Artist != "Queen" || !out.Song.Corrected {
		t.Errorf("later scrobble lost the correction: artist = %q, corrected = %v", out.Song.Artist, out.Song.Corrected)
	}
}

func TestCorrectTwiceKeepsLatest(t *testing.T) {
	d := &fakeDispatcher{results: okResults("lastfm")}
	c, _, _ := newTestController(t, d)
	ctx := context.Background()
	raw := core.RawSong{Artist: "Qeen", Track: "Bohemian Rhapsody"}

	if _, err := c.Correct(ctx, raw, core.Edit{Artist: "Quen"}); err != nil {
		t.Fatalf("first correct: %v", err)
	}

	out, err := c.Correct(ctx, raw, core.Edit{Artist: "Queen"})
	if err != nil {
		t.Fatalf("second correct: %v", err)
	}
	if out.Song.Artist != "Queen" {
		t.Errorf("second correction not applied: artist = %q, want %q", out.Song.Artist, "Queen")
	}

	// A correction to another field refines the stored edit, it does not
	// discard the earlier one.
	out, err = c.Correct(ctx, raw, core.Edit{Album: "A Night at the Opera"})
	if err != nil {
		t.Fatalf("third correct: %v", err)
	}
	if out.Song.Artist != "Queen" || out.Song.Album != "A Night at the Opera" {
		t.Errorf("corrections not merged: artist = %q, album = %q", out.Song.Artist, out.Song.Album)
	}

	out, err = c.Scrobble(ctx, raw)
	if err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if out.Song.Artist != "Queen" {
		t.Errorf("later scrobble lost the correction: artist = %q, want %q", out.Song.Artist, "Queen")
	}
}

func TestCorrectRejectsEmptyEdit(t *testing.T) {
	c, _, _ := newTestController(t, &fakeDispatcher{})

	if _, err := c.Correct(context.Background(), core.RawSong{Artist: "a", Track: "t"}, core.Edit{}); err == nil {
		t.Error("empty edit must be rejected")
	}
}

func TestRetryTargetsSubset(t *testing.T) {
	d := &fakeDispatcher{results: okResults("maloja")}
	c, replay, _ := newTestController(t, d)

	out, err := c.Retry(context.Background(), core.RawSong{Artist: "Queen", Track: "Bohemian Rhapsody"}, []string{"maloja"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(d.lastIDs) != 1 || d.lastIDs[0] != "maloja" {
		t.Errorf("retry ids = %v", d.lastIDs)
	}
	if !replay.Seen(out.Song.Fingerprint) {
		t.Error("successful retry should remember the fingerprint")
	}
}

func TestRetryUnknownIDPropagates(t *testing.T) {
	d := &fakeDispatcher{withErr: scrobbler.ErrUnknownScrobbler}
	c, _, _ := newTestController(t, d)

	_, err := c.Retry(context.Background(), core.RawSong{Artist: "a", Track: "t"}, []string{"nope"})
	if !errors.Is(err, scrobbler.ErrUnknownScrobbler) {
		t.Fatalf("expected ErrUnknownScrobbler, got %v", err)
	}
}
