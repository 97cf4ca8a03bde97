package urls_test

import (
	"reflect"
	"strings"
	"testing"

	"bulkdl/pkg/urls"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "one per line",
			input: "https://a/1\nhttps://b/2\n",
			want:  []string{"https://a/1", "https://b/2"},
		},
		{
			name:  "mixed with prose and blanks",
			input: "grab these:\n\n  https://a/1   and http://b/2\nftp://c/3",
			want:  []string{"https://a/1", "http://b/2"},
		},
		{
			name:  "crlf file",
			input: "https://a/1\r\nhttps://a/1\r\n",
			want:  []string{"https://a/1", "https://a/1"},
		},
		{
			name:  "nothing",
			input: "hello there",
			want:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := urls.Extract(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}

			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Extract() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsURLValid(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/v": true,
		"http://example.com":    true,
		"example.com":           false,
		"ftp://example.com":     false,
		"https://":              false,
	}

	for raw, want := range tests {
		if got := urls.IsURLValid(raw); got != want {
			t.Errorf("IsURLValid(%q) = %v, want %v", raw, got, want)
		}
	}
}
