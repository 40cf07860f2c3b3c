package handler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

// fakeStorage is a StorageProbe with fixed disk figures.
type fakeStorage struct {
	root              string
	total, free, used int64
}

func (f *fakeStorage) Root() string { return f.root }

func (f *fakeStorage) DiskUsage() (total, free, used int64) { return f.total, f.free, f.used }

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(&fakeStorage{root: t.TempDir()}, "ffmpeg")

	w := httptest.NewRecorder()
	handler.Live(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name        string
		root        string
		ffmpeg      bool
		wantStatus  int
		wantStorage string
		wantFFmpeg  string
	}{
		{"all good", "", true, http.StatusOK, "ok", "ok"},
		{"ffmpeg missing", "", false, http.StatusServiceUnavailable, "ok", "unavailable"},
		{"storage missing", "missing", true, http.StatusServiceUnavailable, "unavailable", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if tt.root != "" {
				root = filepath.Join(root, tt.root)
			}
			handler := NewHealthHandler(&fakeStorage{root: root}, "ffmpeg")
			handler.ffmpegAvailable = func() bool { return tt.ffmpeg }

			w := httptest.NewRecorder()
			handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			decodeBody(t, w, &resp)
			if resp.Checks["storage"] != tt.wantStorage || resp.Checks["ffmpeg"] != tt.wantFFmpeg {
				t.Errorf("checks = %v", resp.Checks)
			}
			if (tt.wantStatus == http.StatusOK) != (resp.Status == "ok") {
				t.Errorf("status field = %q", resp.Status)
			}
		})
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	storage := &fakeStorage{root: "/srv/data/downloads", total: 1000, free: 250, used: 750}
	handler := NewHealthHandler(storage, "ffmpeg")

	w := httptest.NewRecorder()
	handler.Stats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var stats SystemStats
	decodeBody(t, w, &stats)

	if stats.DiskTotalBytes != 1000 || stats.DiskFreeBytes != 250 || stats.DiskUsedBytes != 750 {
		t.Errorf("disk = %+v", stats)
	}
	if stats.DiskUsedPct != 75 {
		t.Errorf("DiskUsedPct = %v, want 75", stats.DiskUsedPct)
	}
	if stats.StoragePath != "downloads" {
		t.Errorf("StoragePath = %q, host path must not leak", stats.StoragePath)
	}
	if stats.NumCPU <= 0 || stats.NumGoroutines <= 0 {
		t.Errorf("runtime stats missing: %+v", stats)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "0m"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{50*time.Hour + 10*time.Minute, "2d 2h 10m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
