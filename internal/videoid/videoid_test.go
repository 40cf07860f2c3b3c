package videoid

import (
	"errors"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

func TestExtract_AllFormsAgree(t *testing.T) {
	const want = domain.VideoID("dQw4w9WgXcQ")

	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"https://m.youtube.com/watch?feature=share&v=dQw4w9WgXcQ",
		"http://www.youtube.com/watch?v=dQw4w9WgXcQ#comments",
		"www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=abcdef",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?autoplay=1",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://youtube.com/shorts/dQw4w9WgXcQ?feature=share",
		"https://www.youtube.com/live/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"  https://youtu.be/dQw4w9WgXcQ  ",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			got, err := Extract(u)
			if err != nil {
				t.Fatalf("Extract(%q) error = %v", u, err)
			}
			if got != want {
				t.Errorf("Extract(%q) = %q, want %q", u, got, want)
			}
		})
	}
}

func TestExtract_Invalid(t *testing.T) {
	urls := []string{
		"",
		"not a url",
		"https://vimeo.com/123456789",
		"https://www.youtube.com/",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQQ",
		"https://youtu.be/",
		"https://youtu.be/dQw4w9WgX!Q",
		"https://evil.example.com/watch?v=dQw4w9WgXcQ",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
		"javascript:alert(1)",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			_, err := Extract(u)
			if !errors.Is(err, domain.ErrInvalidURL) {
				t.Errorf("Extract(%q) error = %v, want ErrInvalidURL", u, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	ref, err := Parse(" https://youtu.be/dQw4w9WgXcQ ")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("VideoID = %q", ref.VideoID)
	}
	if ref.SourceURL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("SourceURL = %q", ref.SourceURL)
	}

	if _, err := Parse("https://example.com"); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("Parse() error = %v, want ErrInvalidURL", err)
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/watch?v=x", true},
		{"youtu.be/abc", true},
		{"https://MUSIC.youtube.com/watch?v=x", true},
		{"https://youtube.com.evil.io/watch?v=x", false},
		{"file:///etc/passwd", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsYouTubeURL(tt.in); got != tt.want {
			t.Errorf("IsYouTubeURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
