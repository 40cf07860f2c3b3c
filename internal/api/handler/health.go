package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
)

var startTime = time.Now()

// StorageProbe reports on the managed directory.
type StorageProbe interface {
	Root() string
	DiskUsage() (total, free, used int64)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	storage         StorageProbe
	ffmpegAvailable func() bool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(storage StorageProbe, ffmpegPath string) *HealthHandler {
	return &HealthHandler{
		storage:         storage,
		ffmpegAvailable: func() bool { return ffmpeg.IsAvailable(ffmpegPath) },
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. The managed directory must
// exist and ffmpeg must be runnable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"storage": "ok", "ffmpeg": "ok"}
	status := http.StatusOK

	if info, err := os.Stat(h.storage.Root()); err != nil || !info.IsDir() {
		checks["storage"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if !h.ffmpegAvailable() {
		checks["ffmpeg"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if status != http.StatusOK {
		resp.Status = "error"
	}
	writeJSON(w, status, resp)
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	MemHeapMB      int64   `json:"mem_heap_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	StoragePath    string  `json:"storage_path"`
}

// Stats handles GET /api/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		StoragePath:   filepath.Base(h.storage.Root()),
	}

	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes = h.storage.DiskUsage()
	if stats.DiskTotalBytes > 0 {
		stats.DiskUsedPct = float64(stats.DiskUsedBytes) / float64(stats.DiskTotalBytes) * 100
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
