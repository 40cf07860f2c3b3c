// Package videoid extracts YouTube video identifiers from URLs.
package videoid

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// patterns are tried in order; the first capture group of each must be the ID.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com|youtube-nocookie\.com)/watch\?(?:.*&)?v=([A-Za-z0-9_-]{11})(?:[&#]|$)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`(?:youtube\.com|youtube-nocookie\.com)/embed/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`youtube\.com/live/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`youtube\.com/v/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
}

var youTubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtu.be":                 true,
	"www.youtube-nocookie.com": true,
	"youtube-nocookie.com":     true,
}

// Extract returns the video ID referenced by rawURL.
// It performs no I/O.
func Extract(rawURL string) (domain.VideoID, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" || !IsYouTubeURL(s) {
		return "", domain.ErrInvalidURL
	}

	for _, p := range patterns {
		m := p.FindStringSubmatch(s)
		if len(m) < 2 {
			continue
		}
		id := domain.VideoID(m[1])
		if id.Valid() {
			return id, nil
		}
	}
	return "", domain.ErrInvalidURL
}

// Parse extracts the ID and returns a reference carrying the original URL.
func Parse(rawURL string) (domain.VideoReference, error) {
	id, err := Extract(rawURL)
	if err != nil {
		return domain.VideoReference{}, err
	}
	return domain.VideoReference{
		SourceURL: strings.TrimSpace(rawURL),
		VideoID:   id,
	}, nil
}

// IsYouTubeURL reports whether raw parses as an http(s) URL on a YouTube host.
// A missing scheme is tolerated.
func IsYouTubeURL(raw string) bool {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return youTubeHosts[strings.ToLower(u.Hostname())]
}
