package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://example.com/page", "https://example.com/page"},
		{"strips query", "https://example.com/page?utm=1&x=2", "https://example.com/page"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips trailing slash", "https://example.com/page/", "https://example.com/page"},
		{"strips root slash", "https://example.com/", "https://example.com"},
		{"keeps port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"all at once", "https://example.com/a/b/?q=1#frag", "https://example.com/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLRejectsNonHTTP(t *testing.T) {
	for _, in := range []string{
		"ftp://example.com/file",
		"mailto:someone@example.com",
		"javascript:void(0)",
		"//no-scheme.com/path",
		"https://",
	} {
		_, err := NormalizeURL(in)
		assert.Error(t, err, "expected %q to be rejected", in)
	}
}

func TestIsValidLink(t *testing.T) {
	valid := []string{
		"/about",
		"/blog/post-1",
		"/docs/index.html",
		"/downloads",
	}
	for _, link := range valid {
		assert.True(t, IsValidLink(link), "expected %q to be valid", link)
	}

	invalid := []string{
		"/style.css",
		"/app.js",
		"/photo.JPG",
		"/banner.jpeg",
		"/logo.png",
		"/anim.gif",
		"/icon.svg",
		"/font.woff",
		"/paper.pdf",
		"/archive.zip",
		"/video.mp4",
		"/song.mp3",
		"/setup.exe",
	}
	for _, link := range invalid {
		assert.False(t, IsValidLink(link), "expected %q to be filtered", link)
	}
}
