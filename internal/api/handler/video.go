package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/stream"
)

const (
	modeFile   = "file"
	modeStream = "stream"
)

// VideoService is the subset of service.VideoService the handler uses.
type VideoService interface {
	Info(ctx context.Context, rawURL string) (*service.VideoInfo, error)
	Formats(ctx context.Context, rawURL string) (*stream.Listing, error)
	Download(ctx context.Context, req service.DownloadRequest) (*service.DownloadResult, error)
	Stream(ctx context.Context, req service.DownloadRequest, target downloader.StreamTarget) (*downloader.StreamResult, error)
}

// VideoHandler handles video lookup and download requests.
type VideoHandler struct {
	videoSvc VideoService
	root     string
	maxBody  int64
	logger   *slog.Logger
}

// NewVideoHandler creates a new video handler. root is the managed
// directory, used only to build caller-facing paths.
func NewVideoHandler(videoSvc VideoService, root string, maxBody int64, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		videoSvc: videoSvc,
		root:     root,
		maxBody:  maxBody,
		logger:   logger,
	}
}

// URLRequest is the JSON body for lookups.
type URLRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the JSON body for downloads.
type DownloadRequest struct {
	URL      string `json:"url"`
	Quality  string `json:"quality,omitempty"`
	FormatID string `json:"format_id,omitempty"`
	Mode     string `json:"mode,omitempty"`

	// Resolution is an alias for Quality sent by older web clients.
	Resolution string `json:"resolution,omitempty"`
}

// VideoInfoResponse is metadata plus the available encodings.
type VideoInfoResponse struct {
	VideoID         string                    `json:"video_id"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description"`
	Thumbnail       string                    `json:"thumbnail"`
	Duration        string                    `json:"duration"`
	DurationSeconds int                       `json:"duration_seconds"`
	ViewCount       int64                     `json:"view_count"`
	LikeCount       *int64                    `json:"like_count,omitempty"`
	PublishedAt     string                    `json:"published_at,omitempty"`
	Author          string                    `json:"author,omitempty"`
	Formats         []domain.StreamDescriptor `json:"formats"`
}

// FormatsResponse lists the encodings of one video.
type FormatsResponse struct {
	VideoID string                    `json:"video_id"`
	Title   string                    `json:"title"`
	Formats []domain.StreamDescriptor `json:"formats"`
}

// DownloadResponse is returned when a download is stored.
type DownloadResponse struct {
	Message   string `json:"message"`
	VideoID   string `json:"video_id"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Info handles POST /api/video-info
func (h *VideoHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.videoSvc.Info(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, h.logger.With("url", req.URL), "video info", err)
		return
	}

	meta := info.Metadata
	resp := VideoInfoResponse{
		VideoID:         meta.VideoID.String(),
		Title:           meta.Title,
		Description:     meta.Description,
		Thumbnail:       meta.ThumbnailURL,
		Duration:        meta.Duration,
		DurationSeconds: meta.DurationSeconds(),
		ViewCount:       meta.ViewCount,
		LikeCount:       meta.LikeCount,
		Author:          meta.ChannelTitle,
		Formats:         nonNil(info.Formats),
	}
	if !meta.PublishedAt.IsZero() {
		resp.PublishedAt = meta.PublishedAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Formats handles POST /api/formats
func (h *VideoHandler) Formats(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.videoSvc.Formats(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, h.logger.With("url", req.URL), "format listing", err)
		return
	}

	writeJSON(w, http.StatusOK, FormatsResponse{
		VideoID: listing.Reference.VideoID.String(),
		Title:   listing.Title,
		Formats: nonNil(listing.Formats),
	})
}

// Download handles POST /api/download. Mode "file" (the default) stores
// the video and returns its location; mode "stream" relays it.
func (h *VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Quality == "" {
		req.Quality = req.Resolution
	}
	svcReq := service.DownloadRequest{URL: req.URL, Quality: req.Quality, FormatID: req.FormatID}
	switch req.Mode {
	case "", modeFile:
		h.downloadFile(w, r, svcReq)
	case modeStream:
		h.stream(w, r, svcReq)
	default:
		writeError(w, http.StatusBadRequest, `mode must be "file" or "stream"`)
	}
}

// StreamDownload handles GET /api/download?url=...&quality=...&format_id=...
func (h *VideoHandler) StreamDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.stream(w, r, service.DownloadRequest{
		URL:      q.Get("url"),
		Quality:  q.Get("quality"),
		FormatID: q.Get("format_id"),
	})
}

func (h *VideoHandler) downloadFile(w http.ResponseWriter, r *http.Request, req service.DownloadRequest) {
	result, err := h.videoSvc.Download(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger.With("url", req.URL), "download", err)
		return
	}

	writeJSON(w, http.StatusOK, DownloadResponse{
		Message:   "Download successful",
		VideoID:   result.VideoID.String(),
		Filename:  result.Artifact.Filename,
		Path:      publicPath(h.root, result.Artifact.Filename),
		SizeBytes: result.Artifact.SizeBytes,
	})
}

func (h *VideoHandler) stream(w http.ResponseWriter, r *http.Request, req service.DownloadRequest) {
	target := newStreamTarget(w)

	result, err := h.videoSvc.Stream(r.Context(), req, target)
	if err == nil {
		return
	}
	if !target.started {
		writeServiceError(w, h.logger.With("url", req.URL), "stream", err)
		return
	}

	var sent int64
	if result != nil {
		sent = result.BytesSent
	}
	if errors.Is(err, domain.ErrClientGone) {
		h.logger.Info("stream abandoned by client", "url", req.URL, "bytes_sent", sent)
		return
	}

	// Headers are gone; abort the connection so the caller sees a
	// truncated transfer rather than a short but clean response.
	h.logger.Warn("stream aborted after headers were sent",
		"url", req.URL,
		"bytes_sent", sent,
		"error", err,
	)
	panic(http.ErrAbortHandler)
}

// streamTarget relays bytes to an HTTP response as an attachment.
type streamTarget struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newStreamTarget(w http.ResponseWriter) *streamTarget {
	return &streamTarget{w: w, rc: http.NewResponseController(w)}
}

func (t *streamTarget) Begin(filename, contentType string, size int64) error {
	h := t.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", contentDisposition(filename))
	h.Set("X-Content-Type-Options", "nosniff")
	if size > 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	t.w.WriteHeader(http.StatusOK)
	t.started = true
	return nil
}

func (t *streamTarget) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

func (t *streamTarget) Flush() {
	t.rc.Flush()
}

func nonNil(formats []domain.StreamDescriptor) []domain.StreamDescriptor {
	if formats == nil {
		return []domain.StreamDescriptor{}
	}
	return formats
}
