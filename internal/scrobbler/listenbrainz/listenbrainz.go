// Package listenbrainz scrobbles to a ListenBrainz server through the
// token-authenticated listens API.
package listenbrainz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

const (
	validateTokenPath = "/1/validate-token"
	submitPath        = "/1/submit-listens"
	feedbackPath      = "/1/feedback/recording-feedback"

	listenTypeSingle     = "single"
	listenTypePlayingNow = "playing_now"
)

var ErrListenBrainz = errors.New("listenbrainz error")

type Scrobbler struct {
	logger     *zap.Logger
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	baseURL   string
	userName  string
	validated bool
}

func New(cfg core.ListenBrainzConfig, logger *zap.Logger) *Scrobbler {
	return NewCustom(cfg, logger, http.DefaultClient)
}

func NewCustom(cfg core.ListenBrainzConfig, logger *zap.Logger, httpClient *http.Client) *Scrobbler {
	return &Scrobbler{
		logger:     logger,
		httpClient: httpClient,
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

func (s *Scrobbler) ID() string        { return "listenbrainz" }
func (s *Scrobbler) Label() string     { return "ListenBrainz" }
func (s *Scrobbler) StatusURL() string { return "https://listenbrainz.org/current-status" }

func (s *Scrobbler) CanLoveSong() bool     { return true }
func (s *Scrobbler) CanLoadSongInfo() bool { return false }

// GetSession validates the configured token against the server. Token auth
// has no interactive grant step, so a missing or rejected token is terminal
// until the user supplies a new one.
func (s *Scrobbler) GetSession(ctx context.Context) (scrobbler.Session, error) {
	s.mu.Lock()
	token := s.token
	validated := s.validated
	name := s.userName
	s.mu.Unlock()

	if token == "" {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("listenbrainz: %w", scrobbler.ErrNoSession))
	}
	if validated {
		return scrobbler.Session{Key: token, Name: name}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(validateTokenPath), nil)
	if err != nil {
		return scrobbler.Session{}, scrobbler.OtherErr(err)
	}
	req.Header.Add("Authorization", "Token "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrobbler.Session{}, scrobbler.OtherErr(fmt.Errorf("validate token: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("token rejected: %w", ErrListenBrainz))
	}
	if resp.StatusCode >= 400 {
		return scrobbler.Session{}, scrobbler.OtherErr(fmt.Errorf("validate token: status %d: %w", resp.StatusCode, ErrListenBrainz))
	}

	var body ValidateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return scrobbler.Session{}, scrobbler.OtherErr(fmt.Errorf("decode validate response: %w", err))
	}
	if !body.Valid {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("token invalid: %w", ErrListenBrainz))
	}

	s.mu.Lock()
	s.validated = true
	s.userName = body.UserName
	s.mu.Unlock()

	s.logger.Info("ListenBrainz token validated", zap.String("user", body.UserName))
	return scrobbler.Session{Key: token, Name: body.UserName}, nil
}

// GetAuthURL points at the token settings page. There is no redirect flow;
// the user copies the token into the backend properties.
func (s *Scrobbler) GetAuthURL(ctx context.Context) (string, error) {
	return "https://listenbrainz.org/settings/", nil
}

func (s *Scrobbler) ReadyForGrantAccess() bool { return false }

func (s *Scrobbler) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.userName = ""
	s.validated = false
}

func (s *Scrobbler) ApplyUserProperties(props scrobbler.Props) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := props[scrobbler.PropToken]; ok && token != s.token {
		s.token = token
		s.userName = ""
		s.validated = false
	}
	if base, ok := props[scrobbler.PropBaseURL]; ok && base != "" {
		s.baseURL = strings.TrimSuffix(base, "/")
	}
	return nil
}

func (s *Scrobbler) SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) error {
	return s.submit(ctx, song, false)
}

func (s *Scrobbler) Scrobble(ctx context.Context, song scrobbler.SongInfo) error {
	return s.submit(ctx, song, true)
}

func (s *Scrobbler) submit(ctx context.Context, song scrobbler.SongInfo, submission bool) error {
	sess, err := s.GetSession(ctx)
	if err != nil {
		return err
	}

	payload := &Payload{
		TrackMetadata: &TrackMetadata{
			AdditionalInfo: &AdditionalInfo{
				Duration: int(song.Duration.Seconds()),
			},
			ArtistName:  song.Artist,
			TrackName:   song.Track,
			ReleaseName: song.Album,
		},
	}
	if isMBID(song.MusicBrainzID) {
		payload.TrackMetadata.AdditionalInfo.RecordingMBID = song.MusicBrainzID
	}

	listen := Listen{Payload: []*Payload{payload}}
	if submission {
		listen.ListenType = listenTypeSingle
		listen.Payload[0].ListenedAt = int(song.Timestamp.Unix())
	} else {
		listen.ListenType = listenTypePlayingNow
	}

	return s.post(ctx, sess.Key, submitPath, listen)
}

// ToggleLove submits recording feedback. The feedback API is keyed on the
// recording MBID, so a song without one cannot be loved here.
func (s *Scrobbler) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) error {
	sess, err := s.GetSession(ctx)
	if err != nil {
		return err
	}

	if !isMBID(song.MusicBrainzID) {
		return scrobbler.OtherErr(fmt.Errorf("love needs a recording mbid: %w", ErrListenBrainz))
	}

	score := 0
	if loved {
		score = 1
	}
	feedback := Feedback{RecordingMBID: song.MusicBrainzID, Score: score}

	return s.post(ctx, sess.Key, feedbackPath, feedback)
}

func (s *Scrobbler) GetSongInfo(ctx context.Context, song scrobbler.SongInfo) (*scrobbler.TrackInfo, error) {
	return nil, fmt.Errorf("listenbrainz does not provide song info")
}

func (s *Scrobbler) post(ctx context.Context, token, path string, body any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return scrobbler.OtherErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(path), &buf)
	if err != nil {
		return scrobbler.OtherErr(err)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Token "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrobbler.OtherErr(fmt.Errorf("http post: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.mu.Lock()
		s.validated = false
		s.mu.Unlock()
		return scrobbler.AuthErr(fmt.Errorf("unauthorized: %w", ErrListenBrainz))
	case resp.StatusCode >= 400:
		return scrobbler.OtherErr(fmt.Errorf("status %d: %w", resp.StatusCode, ErrListenBrainz))
	}
	return nil
}

func (s *Scrobbler) url(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL + path
}

func isMBID(v string) bool {
	if v == "" {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}

var _ scrobbler.Scrobbler = (*Scrobbler)(nil)
