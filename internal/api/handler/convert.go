package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

// Converter produces MP3 artifacts.
type Converter interface {
	FromArtifact(ctx context.Context, filename string) (*domain.Artifact, error)
	FromSource(ctx context.Context, rawURL string) (*domain.Artifact, error)
}

// ConvertHandler handles MP3 conversion requests.
type ConvertHandler struct {
	converter Converter
	repo      repository.ArtifactRepository
	maxBody   int64
	logger    *slog.Logger
}

// NewConvertHandler creates a new conversion handler.
func NewConvertHandler(converter Converter, repo repository.ArtifactRepository, maxBody int64, logger *slog.Logger) *ConvertHandler {
	return &ConvertHandler{
		converter: converter,
		repo:      repo,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// ConvertRequest names either a stored video or a video URL.
type ConvertRequest struct {
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// ConvertResponse is returned when an MP3 is stored.
type ConvertResponse struct {
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Convert handles POST /api/convert-to-mp3
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hasFile := strings.TrimSpace(req.Filename) != ""
	hasURL := strings.TrimSpace(req.URL) != ""
	if hasFile == hasURL {
		writeError(w, http.StatusBadRequest, "provide either filename or url")
		return
	}
	if req.Mode != "" && req.Mode != modeFile && req.Mode != modeStream {
		writeError(w, http.StatusBadRequest, `mode must be "file" or "stream"`)
		return
	}

	var (
		artifact *domain.Artifact
		err      error
		logger   *slog.Logger
	)
	if hasFile {
		logger = h.logger.With("filename", req.Filename)
		artifact, err = h.converter.FromArtifact(r.Context(), req.Filename)
	} else {
		logger = h.logger.With("url", req.URL)
		artifact, err = h.converter.FromSource(r.Context(), req.URL)
	}
	if err != nil {
		writeServiceError(w, logger, "conversion", err)
		return
	}

	if req.Mode == modeStream {
		serveArtifact(w, r, h.repo, artifact.Filename, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{
		Message:   "Conversion successful",
		Filename:  artifact.Filename,
		Path:      publicPath(h.repo.Root(), artifact.Filename),
		SizeBytes: artifact.SizeBytes,
	})
}
