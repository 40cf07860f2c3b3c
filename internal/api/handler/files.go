package handler

import (
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

// FileHandler serves, lists and deletes artifacts in the managed directory.
type FileHandler struct {
	repo    repository.ArtifactRepository
	maxBody int64
	logger  *slog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(repo repository.ArtifactRepository, maxBody int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		repo:    repo,
		maxBody: maxBody,
		logger:  logger,
	}
}

// FileRequest names an artifact.
type FileRequest struct {
	Filename string `json:"filename"`
}

// FileResponse describes an artifact to the caller.
type FileResponse struct {
	Filename   string              `json:"filename"`
	Path       string              `json:"path"`
	SizeBytes  int64               `json:"size_bytes"`
	Kind       domain.ArtifactKind `json:"kind"`
	ModifiedAt time.Time           `json:"modified_at"`
}

// FileListResponse is the managed directory listing.
type FileListResponse struct {
	Files []FileResponse `json:"files"`
	Count int            `json:"count"`
}

// Serve handles GET /api/download-file/{filename}
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		// Routing used the escaped path, so the parameter is still escaped.
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidPath.Error())
			return
		}
		name = unescaped
	}

	serveArtifact(w, r, h.repo, name, h.logger)
}

// Delete handles POST /api/delete-file
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}

	if err := h.repo.Delete(r.Context(), req.Filename); err != nil {
		writeServiceError(w, h.logger.With("filename", req.Filename), "delete", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

// List handles GET /api/files
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.repo.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list", err)
		return
	}

	resp := FileListResponse{
		Files: make([]FileResponse, 0, len(artifacts)),
		Count: len(artifacts),
	}
	for _, a := range artifacts {
		resp.Files = append(resp.Files, newFileResponse(h.repo.Root(), &a))
	}

	writeJSON(w, http.StatusOK, resp)
}

func newFileResponse(root string, a *domain.Artifact) FileResponse {
	return FileResponse{
		Filename:   a.Filename,
		Path:       publicPath(root, a.Filename),
		SizeBytes:  a.SizeBytes,
		Kind:       a.Kind,
		ModifiedAt: a.ModTime,
	}
}

// serveArtifact sends a complete artifact as an attachment. Range and
// conditional requests are handled by http.ServeContent.
func serveArtifact(w http.ResponseWriter, r *http.Request, repo repository.ArtifactRepository, name string, logger *slog.Logger) {
	rd, artifact, err := repo.Open(r.Context(), name)
	if err != nil {
		writeServiceError(w, logger.With("filename", name), "file retrieval", err)
		return
	}
	defer rd.Close()

	w.Header().Set("Content-Disposition", contentDisposition(artifact.Filename))
	http.ServeContent(w, r, artifact.Filename, artifact.ModTime, rd)
}

// contentDisposition marks a response as a download. Non-ASCII names are
// encoded per RFC 2231.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
