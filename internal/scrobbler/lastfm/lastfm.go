// Package lastfm scrobbles to the Last.fm API (and Libre.fm through a custom
// API root) using the desktop token grant flow.
package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/scrobbler"
)

var ErrLastFM = errors.New("last.fm error")

// apiError carries the numeric code from an <error> element so calls can be
// classified as auth failures or plain failures.
type apiError struct {
	Code    uint
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("last.fm error %d: %s", e.Code, e.Message)
}

// Error codes that mean the session or token is no good. Everything else is
// a service or request problem.
func (e *apiError) isAuth() bool {
	switch e.Code {
	case 4, 9, 14, 15, 17:
		return true
	}
	return false
}

type Scrobbler struct {
	apiKey      string
	secret      string
	sessionPath string
	logger      *zap.Logger
	httpClient  *http.Client

	mu           sync.Mutex
	apiRoot      string
	authRoot     string
	session      scrobbler.Session
	pendingToken string
}

func New(cfg core.LastFMConfig, logger *zap.Logger) *Scrobbler {
	return NewCustom(cfg, logger, http.DefaultClient)
}

func NewCustom(cfg core.LastFMConfig, logger *zap.Logger, httpClient *http.Client) *Scrobbler {
	return &Scrobbler{
		apiKey:      cfg.APIKey,
		secret:      cfg.Secret,
		sessionPath: cfg.SessionPath,
		logger:      logger,
		httpClient:  httpClient,
		apiRoot:     cfg.APIRoot,
		authRoot:    cfg.AuthRoot,
	}
}

func (s *Scrobbler) ID() string        { return "lastfm" }
func (s *Scrobbler) Label() string     { return "Last.fm" }
func (s *Scrobbler) StatusURL() string { return "https://status.last.fm" }

func (s *Scrobbler) CanLoveSong() bool     { return true }
func (s *Scrobbler) CanLoadSongInfo() bool { return true }

// GetSession returns the cached or persisted session, or exchanges a pending
// grant token for a fresh one. Without either it fails with an auth error.
func (s *Scrobbler) GetSession(ctx context.Context) (scrobbler.Session, error) {
	s.mu.Lock()
	if s.session.Key != "" {
		sess := s.session
		s.mu.Unlock()
		return sess, nil
	}

	if sess, err := s.loadSessionFile(); err == nil && sess.Key != "" {
		s.session = sess
		s.mu.Unlock()
		return sess, nil
	}

	token := s.pendingToken
	s.mu.Unlock()

	if token == "" {
		return scrobbler.Session{}, scrobbler.AuthErr(fmt.Errorf("lastfm: %w", scrobbler.ErrNoSession))
	}

	params := url.Values{}
	params.Add("method", "auth.getSession")
	params.Add("api_key", s.apiKey)
	params.Add("token", token)
	params.Add("api_sig", GetParamSignature(params, s.secret))

	resp, err := s.makeRequest(ctx, http.MethodGet, params)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.isAuth() {
			return scrobbler.Session{}, scrobbler.AuthErr(err)
		}
		return scrobbler.Session{}, scrobbler.OtherErr(err)
	}

	sess := scrobbler.Session{Key: resp.Session.Key, Name: resp.Session.Name}

	s.mu.Lock()
	s.pendingToken = ""
	s.session = sess
	s.mu.Unlock()

	if err := s.saveSessionFile(sess); err != nil {
		s.logger.Warn("Failed to persist lastfm session", zap.Error(err))
	}

	s.logger.Info("Last.fm session established", zap.String("user", sess.Name))
	return sess, nil
}

// GetAuthURL requests a grant token and returns the page where the user
// approves it. The token is remembered so the next GetSession can redeem it.
func (s *Scrobbler) GetAuthURL(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Add("method", "auth.getToken")
	params.Add("api_key", s.apiKey)
	params.Add("api_sig", GetParamSignature(params, s.secret))

	resp, err := s.makeRequest(ctx, http.MethodGet, params)
	if err != nil {
		return "", fmt.Errorf("request auth token: %w", err)
	}

	s.mu.Lock()
	s.pendingToken = resp.Token
	authRoot := s.authRoot
	s.mu.Unlock()

	q := url.Values{}
	q.Add("api_key", s.apiKey)
	q.Add("token", resp.Token)
	return authRoot + "?" + q.Encode(), nil
}

func (s *Scrobbler) ReadyForGrantAccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingToken != ""
}

func (s *Scrobbler) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = scrobbler.Session{}
	s.pendingToken = ""
	if s.sessionPath != "" {
		os.Remove(s.sessionPath)
	}
}

// ApplyUserProperties switches the API root, which points the backend at a
// Libre.fm style clone. The old session belongs to the old service, so it is
// dropped.
func (s *Scrobbler) ApplyUserProperties(props scrobbler.Props) error {
	root, ok := props[scrobbler.PropAPIRoot]
	if !ok || root == "" {
		return nil
	}
	if _, err := url.Parse(root); err != nil {
		return fmt.Errorf("invalid api root: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if root == s.apiRoot {
		return nil
	}
	s.apiRoot = root
	s.session = scrobbler.Session{}
	s.pendingToken = ""
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

	params := url.Values{}
	if submission {
		params.Add("method", "track.Scrobble")
		params.Add("timestamp", strconv.FormatInt(song.Timestamp.Unix(), 10))
	} else {
		params.Add("method", "track.updateNowPlaying")
	}

	params.Add("artist", song.Artist)
	params.Add("track", song.Track)
	if song.Album != "" {
		params.Add("album", song.Album)
	}
	if song.AlbumArtist != "" {
		params.Add("albumArtist", song.AlbumArtist)
	}
	if song.Duration > 0 {
		params.Add("duration", strconv.Itoa(int(song.Duration.Seconds())))
	}
	if isMBID(song.MusicBrainzID) {
		params.Add("mbid", song.MusicBrainzID)
	}

	params.Add("sk", sess.Key)
	params.Add("api_key", s.apiKey)
	params.Add("api_sig", GetParamSignature(params, s.secret))

	if _, err := s.makeRequest(ctx, http.MethodPost, params); err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *Scrobbler) ToggleLove(ctx context.Context, song scrobbler.SongInfo, loved bool) error {
	sess, err := s.GetSession(ctx)
	if err != nil {
		return err
	}

	method := "track.unlove"
	if loved {
		method = "track.love"
	}

	params := url.Values{}
	params.Add("method", method)
	params.Add("artist", song.Artist)
	params.Add("track", song.Track)
	params.Add("sk", sess.Key)
	params.Add("api_key", s.apiKey)
	params.Add("api_sig", GetParamSignature(params, s.secret))

	if _, err := s.makeRequest(ctx, http.MethodPost, params); err != nil {
		return s.classify(err)
	}
	return nil
}

// GetSongInfo looks the track up via track.getInfo. No session required,
// only the API key.
func (s *Scrobbler) GetSongInfo(ctx context.Context, song scrobbler.SongInfo) (*scrobbler.TrackInfo, error) {
	params := url.Values{}
	params.Add("method", "track.getInfo")
	params.Add("api_key", s.apiKey)
	params.Add("artist", song.Artist)
	params.Add("track", song.Track)

	resp, err := s.makeRequest(ctx, http.MethodGet, params)
	if err != nil {
		return nil, fmt.Errorf("track.getInfo: %w", err)
	}

	info := &scrobbler.TrackInfo{
		ScrobblerID: s.ID(),
		Artist:      resp.Track.Artist.Name,
		Track:       resp.Track.Name,
		Album:       resp.Track.Album.Title,
		AlbumArtist: resp.Track.Album.Artist,
		AlbumArtURL: resp.Track.artURL(),
		URL:         resp.Track.URL,
	}
	if isMBID(resp.Track.MBID) {
		info.MusicBrainzID = resp.Track.MBID
	}
	if ms, err := strconv.Atoi(resp.Track.Duration); err == nil {
		// track.getInfo reports the duration in milliseconds.
		info.Duration = time.Duration(ms) * time.Millisecond
	}
	return info, nil
}

func (s *Scrobbler) classify(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.isAuth() {
		s.mu.Lock()
		s.session = scrobbler.Session{}
		s.mu.Unlock()
		return scrobbler.AuthErr(err)
	}
	return scrobbler.OtherErr(err)
}

func (s *Scrobbler) makeRequest(ctx context.Context, method string, params url.Values) (Envelope, error) {
	s.mu.Lock()
	apiRoot := s.apiRoot
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, apiRoot, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("new request: %w", err)
	}
	req.URL.RawQuery = params.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var envelope Envelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode response: %w", err)
	}

	if envelope.Error.Code != 0 {
		return Envelope{}, fmt.Errorf("%w: %w", ErrLastFM, &apiError{Code: envelope.Error.Code, Message: envelope.Error.Value})
	}
	return envelope, nil
}

type sessionFile struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (s *Scrobbler) loadSessionFile() (scrobbler.Session, error) {
	if s.sessionPath == "" {
		return scrobbler.Session{}, os.ErrNotExist
	}
	data, err := os.ReadFile(s.sessionPath)
	if err != nil {
		return scrobbler.Session{}, err
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return scrobbler.Session{}, err
	}
	return scrobbler.Session{Key: sf.Key, Name: sf.Name}, nil
}

func (s *Scrobbler) saveSessionFile(sess scrobbler.Session) error {
	if s.sessionPath == "" {
		return nil
	}
	data, err := json.Marshal(sessionFile{Key: sess.Key, Name: sess.Name})
	if err != nil {
		return err
	}
	return os.WriteFile(s.sessionPath, data, 0o600)
}

// GetParamSignature builds the md5 request signature the API requires for
// authenticated calls.
func GetParamSignature(params url.Values, secret string) string {
	// the parameters must be in order before hashing
	paramKeys := make([]string, 0, len(params))
	for k := range params {
		paramKeys = append(paramKeys, k)
	}
	sort.Strings(paramKeys)
	toHash := ""
	for _, k := range paramKeys {
		toHash += k
		toHash += params[k][0]
	}
	toHash += secret
	hash := md5.Sum([]byte(toHash))
	return hex.EncodeToString(hash[:])
}

func isMBID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

var _ scrobbler.Scrobbler = (*Scrobbler)(nil)
