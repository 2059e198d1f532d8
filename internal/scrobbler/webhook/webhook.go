// Package webhook forwards listening events as JSON posts to a user-supplied
// endpoint, for home automation and custom sinks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

var ErrWebhook = errors.New("webhook error")

type Scrobbler struct {
	logger     *zap.Logger
	httpClient *http.Client

	mu  sync.Mutex
	url string
}

// Event is the JSON body posted for every dispatched call.
type Event struct {
	Event     string    `json:"eventName"`
	Time      time.Time `json:"time"`
	Loved     bool      `json:"isLoved,omitempty"`
	Song      Song      `json:"song"`
}

type Song struct {
	Artist        string  `json:"artist"`
	Track         string  `json:"track"`
	Album         string  `json:"album,omitempty"`
	AlbumArtist   string  `json:"albumArtist,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Timestamp     int64   `json:"timestamp,omitempty"`
	MusicBrainzID string  `json:"musicBrainzId,omitempty"`
	UniqueID      string  `json:"uniqueId,omitempty"`
}

func New(cfg core.WebhookConfig, logger *zap.Logger) *Scrobbler {
	return NewCustom(cfg, logger, http.DefaultClient)
}

func NewCustom(cfg core.WebhookConfig, logger *zap.Logger, httpClient *http.Client) *Scrobbler {
	return &Scrobbler{
		logger:     logger,
		httpClient: httpClient,
		url:        cfg.URL,
	}
}

func (s *Scrobbler) ID() string        { return "webhook" }
func (s *Scrobbler) Label() string     { return "Webhook" }
func (s *Scrobbler) StatusURL() string { return "" }

func (s *Scrobbler) CanLoveSong() bool     { return false }
func (s *Scrobbler) CanLoadSongInfo() bool { return false }

// GetSession succeeds whenever a URL is configured. There are no
// credentials; the endpoint is trusted as given.
func (s *Scrobbler) GetSession(ctx context.Context) (scrobbler.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url == "" {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("webhook: %w", scrobbler.ErrNoSession))
	}
	return scrobbler.Session{Key: s.url}, nil
}

func (s *Scrobbler) GetAuthURL(ctx context.Context) (string, error) {
	return "", fmt.Errorf("webhook has no auth flow")
}

func (s *Scrobbler) ReadyForGrantAccess() bool { return false }

func (s *Scrobbler) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
}

func (s *Scrobbler) ApplyUserProperties(props scrobbler.Props) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := props[scrobbler.PropBaseURL]; ok {
		s.url = u
	}
	return nil
}

func (s *Scrobbler) SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) error {
	return s.post(ctx, Event{Event: "nowplaying", Time: time.Now(), Song: toSong(song)})
}

func (s *Scrobbler) Scrobble(ctx context.Context, song scrobbler.SongInfo) error {
	return s.post(ctx, Event{Event: "scrobble", Time: time.Now(), Song: toSong(song)})
}

func (s *Scrobbler) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) error {
	return s.post(ctx, Event{Event: "love", Time: time.Now(), Loved: loved, Song: toSong(song)})
}

func (s *Scrobbler) GetSongInfo(ctx context.Context, song scrobbler.SongInfo) (*scrobbler.TrackInfo, error) {
	return nil, fmt.Errorf("webhook does not provide song info")
}

func (s *Scrobbler) post(ctx context.Context, event Event) error {
	s.mu.Lock()
	url := s.url
	s.mu.Unlock()

	if url == "" {
		return scrobbler.AuthErr(fmt.Errorf("webhook: %w", scrobbler.ErrNoSession))
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(event); err != nil {
		return scrobbler.OtherErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return scrobbler.OtherErr(err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrobbler.OtherErr(fmt.Errorf("http post: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return scrobbler.OtherErr(fmt.Errorf("status %d: %w", resp.StatusCode, ErrWebhook))
	}

	s.logger.Debug("Webhook delivered", zap.String("event", event.Event))
	return nil
}

func toSong(song scrobbler.SongInfo) Song {
	out := Song{
		Artist:        song.Artist,
		Track:         song.Track,
		Album:         song.Album,
		AlbumArtist:   song.AlbumArtist,
		Duration:      song.Duration.Seconds(),
		MusicBrainzID: song.MusicBrainzID,
		UniqueID:      song.UniqueID,
	}
	if !song.Timestamp.IsZero() {
		out.Timestamp = song.Timestamp.Unix()
	}
	return out
}

var _ scrobbler.Scrobbler = (*Scrobbler)(nil)
