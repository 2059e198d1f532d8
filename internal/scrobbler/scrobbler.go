// Package scrobbler defines the capability contract every tracking backend
// implements, the classified call-result protocol, and the manager that fans
// out listening events to the bound backends.
package scrobbler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSession is wrapped in an auth-kind error by backends that have no
	// usable credentials and cannot obtain any without user interaction.
	ErrNoSession = errors.New("no valid session")

	ErrUnknownScrobbler = errors.New("unknown scrobbler id")
)

// SongInfo is the snapshot of a processed song handed to backends. Backends
// never see the Song entity itself.
type SongInfo struct {
	Artist        string
	Track         string
	Album         string
	AlbumArtist   string
	Duration      time.Duration
	Timestamp     time.Time
	MusicBrainzID string
	AlbumArtURL   string
	UniqueID      string
}

// TrackInfo is supplementary metadata looked up from a backend. It enriches
// display data only and never affects scrobbling correctness.
type TrackInfo struct {
	ScrobblerID   string
	Artist        string
	Track         string
	Album         string
	AlbumArtist   string
	AlbumArtURL   string
	URL           string
	MusicBrainzID string
	Duration      time.Duration
}

// Session is the opaque credential state acquired by a successful bind.
type Session struct {
	Key  string
	Name string
}

// Props carries backend-specific user settings. Recognized keys are up to
// each backend; unknown keys are ignored.
type Props map[string]string

const (
	PropAPIRoot = "apiRoot"
	PropToken   = "token"
	PropAPIKey  = "apiKey"
	PropBaseURL = "baseUrl"
)

// Scrobbler is implemented once per supported tracking service.
//
// SendNowPlaying, Scrobble and ToggleLove report expected failures through
// the classified error protocol (AuthErr / OtherErr); a bare error from any
// of them is a broken implementation. GetSession fails with an auth-kind
// error when no session can be obtained without user interaction.
type Scrobbler interface {
	ID() string
	Label() string
	StatusURL() string

	CanLoveSong() bool
	CanLoadSongInfo() bool

	GetSession(ctx context.Context) (Session, error)
	GetAuthURL(ctx context.Context) (string, error)
	ReadyForGrantAccess() bool
	SignOut()
	ApplyUserProperties(props Props) error

	SendNowPlaying(ctx context.Context, song SongInfo) error
	Scrobble(ctx context.Context, song SongInfo) error
	ToggleLove(ctx context.Context, song SongInfo, loved bool) error
	GetSongInfo(ctx context.Context, song SongInfo) (*TrackInfo, error)
}
