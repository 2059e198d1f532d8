package maloja

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

func TestGetSessionChecksKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != testPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.URL.Query().Get("key")
	}))
	defer srv.Close()

	s := New(core.MalojaConfig{BaseURL: srv.URL, APIKey: "mlj_abc"}, zap.NewNop())

	sess, err := s.GetSession(context.Background())
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Key != "mlj_abc" || gotKey != "mlj_abc" {
		t.Errorf("key = %q, server saw %q", sess.Key, gotKey)
	}
}

func TestGetSessionRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := New(core.MalojaConfig{BaseURL: srv.URL, APIKey: "wrong"}, zap.NewNop())

	_, err := s.GetSession(context.Background())
	var callErr *scrobbler.CallError
	if !errors.As(err, &callErr) || callErr.Kind != scrobbler.KindAuth {
		t.Fatalf("expected auth call error, got %v", err)
	}
}

func TestGetSessionUnconfigured(t *testing.T) {
	s := New(core.MalojaConfig{}, zap.NewNop())

	_, err := s.GetSession(context.Background())
	var callErr *scrobbler.CallError
	if !errors.As(err, &callErr) || callErr.Kind != scrobbler.KindAuth {
		t.Fatalf("expected auth call error, got %v", err)
	}
}

func TestScrobble(t *testing.T) {
	var got newScrobble
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case testPath:
		case scrobblePath:
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("decode scrobble: %v", err)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := New(core.MalojaConfig{BaseURL: srv.URL, APIKey: "mlj_abc"}, zap.NewNop())
	song := scrobbler.SongInfo{
		Artist:    "Queen",
		Track:     "Bohemian Rhapsody",
		Album:     "A Night at the Opera",
		Duration:  355 * time.Second,
		Timestamp: time.Unix(1700000000, 0),
	}

	if err := s.Scrobble(context.Background(), song); err != nil {
		t.Fatalf("scrobble: %v", err)
	}
	if got.Key != "mlj_abc" || got.Title != "Bohemian Rhapsody" {
		t.Errorf("scrobble = %+v", got)
	}
	if len(got.Artists) != 1 || got.Artists[0] != "Queen" {
		t.Errorf("artists = %v", got.Artists)
	}
	if got.Duration != 355 || got.Time != 1700000000 {
		t.Errorf("duration/time = %d/%d", got.Duration, got.Time)
	}
}

func TestNowPlayingIsNoOp(t *testing.T) {
	s := New(core.MalojaConfig{}, zap.NewNop())
	if err := s.SendNowPlaying(context.Background(), scrobbler.SongInfo{Artist: "a", Track: "t"}); err != nil {
		t.Errorf("now playing should always succeed: %v", err)
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	s := New(core.MalojaConfig{}, zap.NewNop())

	if s.CanLoveSong() || s.CanLoadSongInfo() {
		t.Error("maloja advertises no love or info capability")
	}

	err := s.ToggleLove(context.Background(), scrobbler.SongInfo{}, true)
	var callErr *scrobbler.CallError
	if !errors.As(err, &callErr) || callErr.Kind != scrobbler.KindOther {
		t.Errorf("love should fail with an other-kind error, got %v", err)
	}
}
