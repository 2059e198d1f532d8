package listenbrainz

// https://listenbrainz.readthedocs.io/en/latest/users/json.html#submission-json

type (
	Listen struct {
		ListenType string     `json:"listen_type,omitempty"`
		Payload    []*Payload `json:"payload"`
	}

	Payload struct {
		ListenedAt    int            `json:"listened_at,omitempty"`
		TrackMetadata *TrackMetadata `json:"track_metadata"`
	}

	TrackMetadata struct {
		AdditionalInfo *AdditionalInfo `json:"additional_info"`
		ArtistName     string          `json:"artist_name,omitempty"`
		TrackName      string          `json:"track_name,omitempty"`
		ReleaseName    string          `json:"release_name,omitempty"`
	}

	AdditionalInfo struct {
		RecordingMBID string `json:"recording_mbid,omitempty"`
		Duration      int    `json:"duration,omitempty"`
	}

	Feedback struct {
		RecordingMBID string `json:"recording_mbid"`
		Score         int    `json:"score"`
	}

	ValidateTokenResponse struct {
		Code     int    `json:"code"`
		Message  string `json:"message"`
		Valid    bool   `json:"valid"`
		UserName string `json:"user_name"`
	}
)
