package download_test

import (
	"testing"

	"github.com/MrWong99/tabrec/pkg/download"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ext  string
		want string
	}{
		{"t.mp3", ".mp3", "t.mp3"},
		{"T.MP3", ".mp3", "T.MP3"},
		{"", ".mp3", "tab-audio.mp3"},
		{"   ", ".ogg", "tab-audio.ogg"},
		{"../../etc/passwd", ".mp3", "passwd.mp3"},
		{`C:\Users\me\song.mp3`, ".mp3", "song.mp3"},
		{"show", ".ogg", "show.ogg"},
		{"a:b?.mp3", ".mp3", "a_b_.mp3"},
		{"..", ".mp3", "tab-audio.mp3"},
		{"x", "", "x.mp3"},
	}
	for _, tc := range tests {
		if got := download.SanitizeName(tc.name, tc.ext); got != tc.want {
			t.Errorf("SanitizeName(%q, %q) = %q, want %q", tc.name, tc.ext, got, tc.want)
		}
	}
}
