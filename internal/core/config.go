package core

import (
	"time"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Store        StoreConfig
	LLM          LLMConfig
	LastFM       LastFMConfig
	ListenBrainz ListenBrainzConfig
	Maloja       MalojaConfig
	Webhook      WebhookConfig
	Spotify      SpotifyConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	EditsPath               string
	ReplayCapacity          int
	ReplayFalsePositiveRate float64
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type LastFMConfig struct {
	APIKey      string
	Secret      string
	APIRoot     string
	AuthRoot    string
	SessionPath string
}

type ListenBrainzConfig struct {
	Token   string
	BaseURL string
}

type MalojaConfig struct {
	BaseURL string
	APIKey  string
}

type WebhookConfig struct {
	URL string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			EditsPath:               "./edits.db",
			ReplayCapacity:          10000,
			ReplayFalsePositiveRate: 0.001,
		},
		LLM: LLMConfig{
			Provider: "none",
		},
		LastFM: LastFMConfig{
			APIRoot:     "https://ws.audioscrobbler.com/2.0/",
			AuthRoot:    "https://www.last.fm/api/auth/",
			SessionPath: "./lastfm_session.json",
		},
		ListenBrainz: ListenBrainzConfig{
			BaseURL: "https://api.listenbrainz.org",
		},
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/auth/spotify/callback",
			TokenPath:   "./spotify_token.json",
		},
	}
}
