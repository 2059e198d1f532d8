package lastfm

import "encoding/xml"

type (
	// Envelope is the <lfm> wrapper every API response comes in.
	Envelope struct {
		XMLName xml.Name `xml:"lfm"`
		Status  string   `xml:"status,attr"`
		Token   string   `xml:"token"`
		Session Session  `xml:"session"`
		Error   Error    `xml:"error"`
		Track   Track    `xml:"track"`
	}

	Session struct {
		Name       string `xml:"name"`
		Key        string `xml:"key"`
		Subscriber uint   `xml:"subscriber"`
	}

	Error struct {
		Code  uint   `xml:"code,attr"`
		Value string `xml:",chardata"`
	}

	Track struct {
		XMLName  xml.Name `xml:"track"`
		Name     string   `xml:"name"`
		MBID     string   `xml:"mbid"`
		URL      string   `xml:"url"`
		Duration string   `xml:"duration"`
		Artist   struct {
			Name string `xml:"name"`
			MBID string `xml:"mbid"`
			URL  string `xml:"url"`
		} `xml:"artist"`
		Album struct {
			Artist string  `xml:"artist"`
			Title  string  `xml:"title"`
			MBID   string  `xml:"mbid"`
			URL    string  `xml:"url"`
			Image  []Image `xml:"image"`
		} `xml:"album"`
	}

	Image struct {
		Text string `xml:",chardata"`
		Size string `xml:"size,attr"`
	}
)

// artURL picks the largest album image available.
func (t Track) artURL() string {
	order := []string{"extralarge", "large", "medium", "small"}
	bySize := make(map[string]string, len(t.Album.Image))
	for _, img := range t.Album.Image {
		if img.Text != "" {
			bySize[img.Size] = img.Text
		}
	}
	for _, size := range order {
		if u, ok := bySize[size]; ok {
			return u
		}
	}
	return ""
}
