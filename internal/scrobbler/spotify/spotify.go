// Package spotify binds the Spotify Web API as a scrobbling target. Spotify
// keeps its own listen history, so scrobble calls are accepted without work;
// the backend earns its place with library loves and track info lookups.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
	"scrobblerd/pkg/fuzzy"
)

const filePermission = 0o600

// minMatchSimilarity rejects search hits that are not plausibly the song we
// were asked about.
const minMatchSimilarity = 0.7

var ErrSpotify = errors.New("spotify error")

type Scrobbler struct {
	logger     *zap.Logger
	auth       *spotifyauth.Authenticator
	tokenPath  string
	normalizer *fuzzy.Normalizer

	mu          sync.Mutex
	client      *spotify.Client
	userName    string
	oauthState  string
	pendingCode string
}

type tokenData struct {
	Token *oauth2.Token `json:"token"`
}

func New(cfg core.SpotifyConfig, logger *zap.Logger) *Scrobbler {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserLibraryModify,
			spotifyauth.ScopeUserLibraryRead,
		),
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	return &Scrobbler{
		logger:     logger,
		auth:       auth,
		tokenPath:  cfg.TokenPath,
		normalizer: fuzzy.NewNormalizer(),
	}
}

func (s *Scrobbler) ID() string        { return "spotify" }
func (s *Scrobbler) Label() string     { return "Spotify" }
func (s *Scrobbler) StatusURL() string { return "https://status.spotify.dev" }

func (s *Scrobbler) CanLoveSong() bool     { return true }
func (s *Scrobbler) CanLoadSongInfo() bool { return true }

// GetSession builds an API client from the persisted token, or redeems the
// authorization code captured by the OAuth callback.
func (s *Scrobbler) GetSession(ctx context.Context) (scrobbler.Session, error) {
	s.mu.Lock()
	if s.client != nil {
		sess := scrobbler.Session{Name: s.userName}
		s.mu.Unlock()
		return sess, nil
	}
	code := s.pendingCode
	s.mu.Unlock()

	var token *oauth2.Token
	var err error
	if code != "" {
		token, err = s.auth.Exchange(ctx, code)
		if err != nil {
			return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("exchange code: %w", err))
		}
		if err := s.saveToken(token); err != nil {
			s.logger.Warn("Failed to persist spotify token", zap.Error(err))
		}
	} else {
		token, err = s.loadToken()
		if err != nil {
			return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("spotify: %w", scrobbler.ErrNoSession))
		}
	}

	client := spotify.New(s.auth.Client(ctx, token))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("verify token: %w", err))
	}

	s.mu.Lock()
	s.client = client
	s.userName = user.DisplayName
	s.pendingCode = ""
	s.mu.Unlock()

	s.logger.Info("Spotify session established", zap.String("user", user.DisplayName))
	return scrobbler.Session{Name: user.DisplayName}, nil
}

func (s *Scrobbler) GetAuthURL(ctx context.Context) (string, error) {
	state := uuid.NewString()

	s.mu.Lock()
	s.oauthState = state
	s.mu.Unlock()

	return s.auth.AuthURL(state), nil
}

// CompleteAuth stores the authorization code delivered to the OAuth
// callback. The next GetSession redeems it.
func (s *Scrobbler) CompleteAuth(code, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state != s.oauthState || s.oauthState == "" {
		return fmt.Errorf("oauth state mismatch: %w", ErrSpotify)
	}
	s.pendingCode = code
	return nil
}

func (s *Scrobbler) ReadyForGrantAccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCode != ""
}

func (s *Scrobbler) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client = nil
	s.userName = ""
	s.oauthState = ""
	s.pendingCode = ""
	if s.tokenPath != "" {
		os.Remove(s.tokenPath)
	}
}

func (s *Scrobbler) ApplyUserProperties(props scrobbler.Props) error {
	return nil
}

// SendNowPlaying is an accepted no-op. Spotify records its own playback, a
// bound backend just acknowledges the event.
func (s *Scrobbler) SendNowPlaying(ctx context.Context, song scrobbler.SongInfo) error {
	return nil
}

// Scrobble is an accepted no-op, see SendNowPlaying.
func (s *Scrobbler) Scrobble(ctx context.Context, song scrobbler.SongInfo) error {
	return nil
}

// ToggleLove saves the track to (or removes it from) the user's library.
func (s *Scrobbler) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) error {
	if _, err := s.GetSession(ctx); err != nil {
		return err
	}

	track, err := s.findTrack(ctx, song)
	if err != nil {
		return scrobbler.OtherErr(err)
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if loved {
		err = client.AddTracksToLibrary(ctx, track.ID)
	} else {
		err = client.RemoveTracksFromLibrary(ctx, track.ID)
	}
	if err != nil {
		return scrobbler.OtherErr(fmt.Errorf("update library: %w", err))
	}

	s.logger.Debug("Spotify library updated",
		zap.String("track", track.Name),
		zap.Bool("loved", loved))
	return nil
}

func (s *Scrobbler) GetSongInfo(ctx context.Context, song scrobbler.SongInfo) (*scrobbler.TrackInfo, error) {
	if _, err := s.GetSession(ctx); err != nil {
		return nil, err
	}

	track, err := s.findTrack(ctx, song)
	if err != nil {
		return nil, err
	}

	info := &scrobbler.TrackInfo{
		ScrobblerID: s.ID(),
		Artist:      joinArtists(track.Artists),
		Track:       track.Name,
		Album:       track.Album.Name,
		AlbumArtist: joinArtists(track.Album.Artists),
		URL:         track.ExternalURLs["spotify"],
		Duration:    track.TimeDuration(),
	}
	if len(track.Album.Images) > 0 {
		info.AlbumArtURL = track.Album.Images[0].URL
	}
	return info, nil
}

func (s *Scrobbler) findTrack(ctx context.Context, song scrobbler.SongInfo) (*spotify.FullTrack, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	query := fmt.Sprintf("artist:%s track:%s", song.Artist, song.Track)
	results, err := client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(5))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if results.Tracks == nil || len(results.Tracks.Tracks) == 0 {
		return nil, fmt.Errorf("no match for %q by %q: %w", song.Track, song.Artist, ErrSpotify)
	}

	for i := range results.Tracks.Tracks {
		track := &results.Tracks.Tracks[i]
		artistSim := s.normalizer.CalculateSimilarity(
			s.normalizer.NormalizeArtist(joinArtists(track.Artists)),
			s.normalizer.NormalizeArtist(song.Artist))
		trackSim := s.normalizer.CalculateSimilarity(
			s.normalizer.NormalizeTitle(track.Name),
			s.normalizer.NormalizeTitle(song.Track))
		if artistSim >= minMatchSimilarity && trackSim >= minMatchSimilarity {
			return track, nil
		}
	}
	return nil, fmt.Errorf("no close match for %q by %q: %w", song.Track, song.Artist, ErrSpotify)
}

func joinArtists(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

func (s *Scrobbler) loadToken() (*oauth2.Token, error) {
	if s.tokenPath == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return nil, err
	}

	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, err
	}
	if td.Token == nil {
		return nil, fmt.Errorf("empty token file")
	}
	return td.Token, nil
}

func (s *Scrobbler) saveToken(token *oauth2.Token) error {
	if s.tokenPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.tokenPath, data, filePermission)
}

var _ scrobbler.Scrobbler = (*Scrobbler)(nil)
