package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
)

const sampleResponse = `{
  "items": [{
    "id": "dQw4w9WgXcQ",
    "snippet": {
      "title": "Sample Video",
      "description": "A fixture",
      "channelTitle": "Sample Channel",
      "publishedAt": "2024-01-02T03:04:05Z",
      "thumbnails": {
        "default": {"url": "https://i.ytimg.com/default.jpg", "width": 120, "height": 90},
        "high": {"url": "https://i.ytimg.com/high.jpg", "width": 480, "height": 360}
      }
    },
    "contentDetails": {"duration": "PT3M21S"},
    "statistics": {"viewCount": "1234", "likeCount": "56"}
  }]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.YouTubeConfig{
		APIKey:  "secret-key",
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
	}, testLogger())
	return client, &calls
}

func TestFetch_Success(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("path = %q, want /videos", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("id") != "dQw4w9WgXcQ" {
			t.Errorf("id = %q", q.Get("id"))
		}
		if q.Get("key") != "secret-key" {
			t.Errorf("key = %q, want the configured credential", q.Get("key"))
		}
		if q.Get("part") != "snippet,contentDetails,statistics" {
			t.Errorf("part = %q", q.Get("part"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	})

	meta, err := client.Fetch(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}

	if meta.Title != "Sample Video" {
		t.Errorf("Title = %q, want %q", meta.Title, "Sample Video")
	}
	if meta.Duration != "PT3M21S" {
		t.Errorf("Duration = %q, want %q", meta.Duration, "PT3M21S")
	}
	if meta.DurationSeconds() != 201 {
		t.Errorf("DurationSeconds() = %d, want 201", meta.DurationSeconds())
	}
	if meta.ViewCount != 1234 {
		t.Errorf("ViewCount = %d", meta.ViewCount)
	}
	if meta.LikeCount == nil || *meta.LikeCount != 56 {
		t.Errorf("LikeCount = %v", meta.LikeCount)
	}
	if meta.ThumbnailURL != "https://i.ytimg.com/high.jpg" {
		t.Errorf("ThumbnailURL = %q, want the best available", meta.ThumbnailURL)
	}
	if !meta.PublishedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", meta.PublishedAt)
	}
	if meta.ChannelTitle != "Sample Channel" {
		t.Errorf("ChannelTitle = %q", meta.ChannelTitle)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestFetch_HiddenLikes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Replace(sampleResponse, `, "likeCount": "56"`, "", 1)))
	})

	meta, err := client.Fetch(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if meta.LikeCount != nil {
		t.Errorf("LikeCount = %v, want nil", *meta.LikeCount)
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"empty items", http.StatusOK, `{"items": []}`, domain.ErrVideoNotFound},
		{"server error", http.StatusInternalServerError, `{"error": "boom"}`, domain.ErrUpstreamUnavailable},
		{"quota exceeded", http.StatusForbidden, `{"error": {"message": "quotaExceeded"}}`, domain.ErrUpstreamUnavailable},
		{"not json", http.StatusOK, `<html>`, domain.ErrMalformedResponse},
		{"missing title", http.StatusOK, `{"items":[{"snippet":{},"contentDetails":{"duration":"PT1S"}}]}`, domain.ErrMalformedResponse},
		{"missing duration", http.StatusOK, `{"items":[{"snippet":{"title":"x"},"contentDetails":{}}]}`, domain.ErrMalformedResponse},
		{"missing content details", http.StatusOK, `{"items":[{"snippet":{"title":"x"}}]}`, domain.ErrMalformedResponse},
		{"bad view count", http.StatusOK, `{"items":[{"snippet":{"title":"x"},"contentDetails":{"duration":"PT1S"},"statistics":{"viewCount":"many"}}]}`, domain.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Fetch(context.Background(), "dQw4w9WgXcQ")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if *calls != 1 {
				t.Errorf("calls = %d, want exactly one attempt", *calls)
			}
		})
	}
}

func TestFetch_UpstreamBodyNotReturned(t *testing.T) {
	var logs bytes.Buffer
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"internal detail secret-key"}`))
	})
	client.logger = slog.New(slog.NewTextHandler(&logs, nil))

	_, err := client.Fetch(context.Background(), "dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "internal detail") || strings.Contains(err.Error(), "secret-key") {
		t.Errorf("error leaks upstream body: %v", err)
	}
	if !strings.Contains(logs.String(), "status=400") {
		t.Errorf("upstream status should be logged, got %q", logs.String())
	}
	if strings.Contains(logs.String(), "secret-key") {
		t.Error("credential must not appear in logs")
	}
}

func TestFetch_InvalidIDSkipsNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.Fetch(context.Background(), "bad"); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("error = %v, want ErrInvalidURL", err)
	}
	if *calls != 0 {
		t.Errorf("calls = %d, want 0", *calls)
	}
}

func TestFetch_Unreachable(t *testing.T) {
	client := NewClient(config.YouTubeConfig{
		APIKey:  "k",
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
	}, testLogger())

	if _, err := client.Fetch(context.Background(), "dQw4w9WgXcQ"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestEnabled(t *testing.T) {
	if NewClient(config.YouTubeConfig{}, testLogger()).Enabled() {
		t.Error("client without key should report disabled")
	}
	if !NewClient(config.YouTubeConfig{APIKey: "k"}, testLogger()).Enabled() {
		t.Error("client with key should report enabled")
	}
}
