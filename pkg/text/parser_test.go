package text

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{
			name:  "Hours minutes seconds",
			input: "01:10:30",
			want:  4230 * time.Second,
		},
		{
			name:  "Negative minutes seconds",
			input: "-01:10",
			want:  -70 * time.Second,
		},
		{
			name:  "Empty string",
			input: "",
			want:  0,
		},
		{
			name:  "Plain seconds",
			input: "20",
			want:  20 * time.Second,
		},
		{
			name:  "Surrounding whitespace",
			input: "  3:05 ",
			want:  185 * time.Second,
		},
		{
			name:  "Leading plus sign",
			input: "+0:45",
			want:  45 * time.Second,
		},
		{
			name:  "Garbage text",
			input: "live",
			want:  0,
		},
		{
			name:  "Too many segments",
			input: "1:2:3:4",
			want:  0,
		},
		{
			name:  "Non-numeric segment",
			input: "1:xx",
			want:  0,
		},
		{
			name:  "Lone dash",
			input: "-",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDuration(tt.input)
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Whitespace collapsed",
			input:    "  Daft   Punk ",
			expected: "Daft Punk",
		},
		{
			name:     "Zero width characters removed",
			input:    "Get​Lucky",
			expected: "GetLucky",
		},
		{
			name:     "Byte order mark and word joiner removed",
			input:    "\uFEFFDaft Punk\u2060",
			expected: "Daft Punk",
		},
		{
			name:     "Zero width joiners removed",
			input:    "One\u200CMore\u200DTime",
			expected: "OneMoreTime",
		},
		{
			name:     "Empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "Newlines collapsed",
			input:    "One\nMore\nTime",
			expected: "One More Time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanField(tt.input); got != tt.expected {
				t.Errorf("CleanField(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitArtistTitle(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantArtist string
		wantTitle  string
		wantOK     bool
	}{
		{
			name:       "Hyphen separator",
			input:      "Daft Punk - One More Time",
			wantArtist: "Daft Punk",
			wantTitle:  "One More Time",
			wantOK:     true,
		},
		{
			name:       "En dash separator",
			input:      "Queen – Bohemian Rhapsody",
			wantArtist: "Queen",
			wantTitle:  "Bohemian Rhapsody",
			wantOK:     true,
		},
		{
			name:   "No separator",
			input:  "Bohemian Rhapsody",
			wantOK: false,
		},
		{
			name:   "Empty artist side",
			input:  " - Title",
			wantOK: false,
		},
		{
			name:       "Hyphen inside artist name survives",
			input:      "Jay-Z - 99 Problems",
			wantArtist: "Jay-Z",
			wantTitle:  "99 Problems",
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artist, title, ok := SplitArtistTitle(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("SplitArtistTitle(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if artist != tt.wantArtist || title != tt.wantTitle {
				t.Errorf("SplitArtistTitle(%q) = (%q, %q), want (%q, %q)", tt.input, artist, title, tt.wantArtist, tt.wantTitle)
			}
		})
	}
}
