package fuzzy

import (
	"testing"
	"time"
)

// runStringTransformationTest is a helper to run tests for string transformation functions.
func runStringTransformationTest(t *testing.T, testName string,
	transformFunc func(string) string, testCases []struct {
		name     string
		input    string
		expected string
	}) {
	t.Helper()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := transformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", testName, result, tt.expected)
			}
		})
	}
}

func TestNormalizer_NormalizeArtist(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple artist name",
			input:    "The Beatles",
			expected: "the beatles",
		},
		{
			name:     "Accented characters folded",
			input:    "Beyoncé",
			expected: "beyonce",
		},
		{
			name:     "Punctuation stripped",
			input:    "AC/DC",
			expected: "ac dc",
		},
		{
			name:     "And becomes ampersand",
			input:    "Simon and Garfunkel",
			expected: "simon & garfunkel",
		},
		{
			name:     "Whitespace collapsed",
			input:    "  Daft   Punk  ",
			expected: "daft punk",
		},
	}

	runStringTransformationTest(t, "NormalizeArtist", normalizer.NormalizeArtist, tests)
}

func TestNormalizer_NormalizeTitle(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain title",
			input:    "Bohemian Rhapsody",
			expected: "bohemian rhapsody",
		},
		{
			name:     "Feat credit stripped",
			input:    "Get Lucky (feat. Pharrell Williams)",
			expected: "get lucky",
		},
		{
			name:     "Remaster marker stripped",
			input:    "Come Together - 2019 Remaster",
			expected: "come together",
		},
		{
			name:     "Remix marker stripped",
			input:    "One More Time (Club Remix)",
			expected: "one more time",
		},
		{
			name:     "Dash remix marker stripped",
			input:    "Around the World - Extended Remix",
			expected: "around the world",
		},
		{
			name:     "Remix as plain word kept",
			input:    "The Remix",
			expected: "the remix",
		},
		{
			name:     "Radio edit suffix stripped",
			input:    "Harder Better Faster Stronger - Radio Edit",
			expected: "harder better faster stronger",
		},
	}

	runStringTransformationTest(t, "NormalizeTitle", normalizer.NormalizeTitle, tests)
}

// Two different tracks carrying the same remix marker must keep distinct
// identities; only the marker is removed, never the title around it.
func TestNormalizer_RemixTitlesStayDistinct(t *testing.T) {
	normalizer := NewNormalizer()

	a := normalizer.NormalizeTitle("One More Time (Club Remix)")
	b := normalizer.NormalizeTitle("Aerodynamic (Club Remix)")

	if a == "" || b == "" {
		t.Fatalf("remix titles normalized to empty: %q, %q", a, b)
	}
	if a == b {
		t.Errorf("distinct remix titles collapsed to %q", a)
	}
}

func TestNormalizer_NormalizeAlbum(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain album",
			input:    "Abbey Road",
			expected: "abbey road",
		},
		{
			name:     "Deluxe edition stripped",
			input:    "Random Access Memories (Deluxe Edition)",
			expected: "random access memories",
		},
		{
			name:     "Remix album kept distinct",
			input:    "Discovery Remixed",
			expected: "discovery remixed",
		},
	}

	runStringTransformationTest(t, "NormalizeAlbum", normalizer.NormalizeAlbum, tests)
}

func TestNormalizer_CalculateSimilarity(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name string
		s1   string
		s2   string
		min  float64
		max  float64
	}{
		{
			name: "Identical strings",
			s1:   "hello world",
			s2:   "hello world",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "Empty string",
			s1:   "",
			s2:   "hello",
			min:  0.0,
			max:  0.0,
		},
		{
			name: "Similar strings",
			s1:   "get lucky",
			s2:   "get lucky radio",
			min:  0.5,
			max:  0.99,
		},
		{
			name: "Dissimilar strings",
			s1:   "abc",
			s2:   "xyz",
			min:  0.0,
			max:  0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizer.CalculateSimilarity(tt.s1, tt.s2)
			if got < tt.min || got > tt.max {
				t.Errorf("CalculateSimilarity(%q, %q) = %v, want in [%v, %v]", tt.s1, tt.s2, got, tt.min, tt.max)
			}
		})
	}
}

func TestNormalizer_DurationTolerance(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name string
		d1   time.Duration
		d2   time.Duration
		want float64
	}{
		{
			name: "Exact match",
			d1:   3 * time.Minute,
			d2:   3 * time.Minute,
			want: 1.0,
		},
		{
			name: "Within tolerance",
			d1:   3 * time.Minute,
			d2:   3*time.Minute + 20*time.Second,
			want: 1.0,
		},
		{
			name: "Far apart",
			d1:   3 * time.Minute,
			d2:   6 * time.Minute,
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizer.DurationTolerance(tt.d1, tt.d2)
			if got != tt.want {
				t.Errorf("DurationTolerance(%v, %v) = %v, want %v", tt.d1, tt.d2, got, tt.want)
			}
		})
	}
}
