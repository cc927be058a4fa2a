package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// invalidExtensions marks links that never lead to indexable HTML.
var invalidExtensions = []string{
	".css", ".js", ".jpg", ".jpeg", ".png", ".gif",
	".svg", ".woff", ".pdf", ".zip", ".mp4", ".mp3", ".exe",
}

// NormalizeURL strips query parameters, fragments and trailing slashes so
// the same page always maps to one canonical key.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// IsValidLink filters links to assets that are not HTML documents.
func IsValidLink(link string) bool {
	lower := strings.ToLower(link)
	for _, ext := range invalidExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func isHomePage(u *url.URL) bool {
	return u.Path == "" || u.Path == "/"
}

func isHTMLContent(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
