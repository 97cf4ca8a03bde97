package shellquote_test

import (
	"testing"

	"bulkdl/pkg/shellquote"
)

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bin  string
		args []string
		want string
	}{
		{
			name: "no args",
			bin:  "/usr/bin/yt-dlp",
			want: "/usr/bin/yt-dlp",
		},
		{
			name: "safe args stay bare",
			bin:  "yt-dlp",
			args: []string{"-f", "best", "-i"},
			want: "yt-dlp -f best -i",
		},
		{
			name: "output template is quoted",
			bin:  "yt-dlp",
			args: []string{"-o", "/tmp/x/%(title)s.%(ext)s"},
			want: "yt-dlp -o '/tmp/x/%(title)s.%(ext)s'",
		},
		{
			name: "embedded single quote",
			bin:  "ffmpeg",
			args: []string{"-i", "it's here.mp4"},
			want: `ffmpeg -i 'it'\''s here.mp4'`,
		},
		{
			name: "empty arg",
			bin:  "echo",
			args: []string{""},
			want: "echo ''",
		},
		{
			name: "url with query",
			bin:  "yt-dlp",
			args: []string{"https://a.example/watch?v=1&t=2"},
			want: "yt-dlp 'https://a.example/watch?v=1&t=2'",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := shellquote.Join(tc.bin, tc.args); got != tc.want {
				t.Errorf("Join() = %q, want %q", got, tc.want)
			}
		})
	}
}
