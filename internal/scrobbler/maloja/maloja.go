// Package maloja scrobbles to a self-hosted Maloja server through its native
// mlj_1 API.
package maloja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

const (
	testPath     = "/apis/mlj_1/test"
	scrobblePath = "/apis/mlj_1/newscrobble"
)

var ErrMaloja = errors.New("maloja error")

type Scrobbler struct {
	logger     *zap.Logger
	httpClient *http.Client

	mu       sync.Mutex
	baseURL  string
	apiKey   string
	verified bool
}

type newScrobble struct {
	Key      string   `json:"key"`
	Artists  []string `json:"artists"`
	Title    string   `json:"title"`
	Album    string   `json:"album,omitempty"`
	Duration int      `json:"duration,omitempty"`
	Time     int64    `json:"time,omitempty"`
}

func New(cfg core.MalojaConfig, logger *zap.Logger) *Scrobbler {
	return NewCustom(cfg, logger, http.DefaultClient)
}

func NewCustom(cfg core.MalojaConfig, logger *zap.Logger, httpClient *http.Client) *Scrobbler {
	return &Scrobbler{
		logger:     logger,
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

func (s *Scrobbler) ID() string    { return "maloja" }
func (s *Scrobbler) Label() string { return "Maloja" }

// StatusURL points at the configured server itself, there is no hosted
// status page for a self-hosted scrobbler.
func (s *Scrobbler) StatusURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

func (s *Scrobbler) CanLoveSong() bool     { return false }
func (s *Scrobbler) CanLoadSongInfo() bool { return false }

// GetSession checks the API key against the server's test endpoint.
func (s *Scrobbler) GetSession(ctx context.Context) (scrobbler.Session, error) {
	s.mu.Lock()
	baseURL, apiKey, verified := s.baseURL, s.apiKey, s.verified
	s.mu.Unlock()

	if baseURL == "" || apiKey == "" {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("maloja: %w", scrobbler.ErrNoSession))
	}
	if verified {
		return scrobbler.Session{Key: apiKey}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+testPath+"?key="+apiKey, nil)
	if err != nil {
		return scrobbler.Session{}, scrobbler.OtherErr(err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrobbler.Session{}, scrobbler.OtherErr(fmt.Errorf("key check: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("api key rejected: %w", ErrMaloja))
	case resp.StatusCode >= 400:
		return scrobbler.Session{}, scrobbler.OtherErr(fmt.Errorf("key check: status %d: %w", resp.StatusCode, ErrMaloja))
	}

	s.mu.Lock()
	s.verified = true
	s.mu.Unlock()

	return scrobbler.Session{Key: apiKey}, nil
}

// GetAuthURL has nothing to offer, the API key lives in the server config.
func (s *Scrobbler) GetAuthURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseURL == "" {
		return "", fmt.Errorf("no maloja server configured")
	}
	return s.baseURL + "/admin_setup", nil
}

func (s *Scrobbler) ReadyForGrantAccess() bool { return false }

func (s *Scrobbler) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = ""
	s.verified = false
}

func (s *Scrobbler) ApplyUserProperties(props scrobbler.Props) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := props[scrobbler.PropAPIKey]; ok && key != s.apiKey {
		s.apiKey = key
		s.verified = false
	}
	if base, ok := props[scrobbler.PropBaseURL]; ok && base != "" {
		base = strings.TrimSuffix(base, "/")
		if base != s.baseURL {
			s.baseURL = base
			s.verified = false
		}
	}
	return nil
}

// SendNowPlaying succeeds without doing anything, Maloja has no now-playing
// concept.
func (s *Scrobbler) SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) error {
	return nil
}

func (s *Scrobbler) Scrobble(ctx context.Context, song scrobbler.SongInfo) error {
	sess, err := s.GetSession(ctx)
	if err != nil {
		return err
	}

	body := newScrobble{
		Key:      sess.Key,
		Artists:  []string{song.Artist},
		Title:    song.Track,
		Album:    song.Album,
		Duration: int(song.Duration.Seconds()),
		Time:     song.Timestamp.Unix(),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return scrobbler.OtherErr(err)
	}

	s.mu.Lock()
	baseURL := s.baseURL
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+scrobblePath, &buf)
	if err != nil {
		return scrobbler.OtherErr(err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrobbler.OtherErr(fmt.Errorf("http post: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		s.mu.Lock()
		s.verified = false
		s.mu.Unlock()
		return scrobbler.AuthErr(fmt.Errorf("api key rejected: %w", ErrMaloja))
	case resp.StatusCode >= 400:
		return scrobbler.OtherErr(fmt.Errorf("status %d: %w", resp.StatusCode, ErrMaloja))
	}

	s.logger.Debug("Maloja scrobble accepted",
		zap.String("artist", song.Artist),
		zap.String("track", song.Track))
	return nil
}

func (s *Scrobbler) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) error {
	return scrobbler.OtherErr(fmt.Errorf("maloja does not support loving tracks"))
}

func (s *Scrobbler) GetSongInfo(ctx context.Context, song scrobbler.SongInfo) (*scrobbler.TrackInfo, error) {
	return nil, fmt.Errorf("maloja does not provide song info")
}

var _ scrobbler.Scrobbler = (*Scrobbler)(nil)
