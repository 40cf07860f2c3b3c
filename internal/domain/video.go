package domain

import (
	"regexp"
	"strconv"
	"time"
)

// VideoIDLength is the fixed length of an upstream video identifier.
const VideoIDLength = 11

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID is the upstream identifier of a video.
type VideoID string

// String returns the string representation of the VideoID.
func (id VideoID) String() string {
	return string(id)
}

// Valid reports whether the ID has the expected length and charset.
func (id VideoID) Valid() bool {
	return videoIDPattern.MatchString(string(id))
}

// VideoReference pairs the URL a caller supplied with the ID extracted from it.
type VideoReference struct {
	SourceURL string  `json:"source_url"`
	VideoID   VideoID `json:"video_id"`
}

// WatchURL returns the canonical long-form URL for the referenced video.
func (r VideoReference) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + r.VideoID.String()
}

// VideoMetadata describes a video as reported by the metadata service.
// It is fetched fresh for every request.
type VideoMetadata struct {
	VideoID      VideoID   `json:"video_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail"`
	Duration     string    `json:"duration"` // ISO-8601, e.g. PT3M21S
	ViewCount    int64     `json:"view_count"`
	LikeCount    *int64    `json:"like_count,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	ChannelTitle string    `json:"channel_title,omitempty"`
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// DurationSeconds converts the ISO-8601 duration to seconds.
// Returns 0 if the duration is empty or unparseable.
func (m *VideoMetadata) DurationSeconds() int {
	return ParseISODuration(m.Duration)
}

// ParseISODuration parses the subset of ISO-8601 durations the upstream
// service emits (days, hours, minutes, seconds).
func ParseISODuration(s string) int {
	parts := isoDurationPattern.FindStringSubmatch(s)
	if parts == nil {
		return 0
	}
	multipliers := []int{86400, 3600, 60, 1}
	total := 0
	for i, mult := range multipliers {
		if parts[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return 0
		}
		total += n * mult
	}
	return total
}

// FormatISODuration renders seconds as an ISO-8601 duration (PT#H#M#S).
func FormatISODuration(seconds int) string {
	if seconds <= 0 {
		return "PT0S"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	out := "PT"
	if h > 0 {
		out += strconv.Itoa(h) + "H"
	}
	if m > 0 {
		out += strconv.Itoa(m) + "M"
	}
	if s > 0 {
		out += strconv.Itoa(s) + "S"
	}
	return out
}
