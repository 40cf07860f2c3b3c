package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// errorStatus maps each taxonomy sentinel to its HTTP status. Order
// matters: the first match wins for errors that join several kinds.
var errorStatus = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidPath, http.StatusBadRequest},
	{domain.ErrInvalidURL, http.StatusBadRequest},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrVideoNotFound, http.StatusNotFound},
	{domain.ErrFormatUnavailable, http.StatusNotFound},
	{domain.ErrSourceNotFound, http.StatusNotFound},
	{domain.ErrArtifactNotFound, http.StatusNotFound},
	{domain.ErrNoAudioTrack, http.StatusUnprocessableEntity},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrUpstreamUnavailable, http.StatusBadGateway},
	{domain.ErrMalformedResponse, http.StatusBadGateway},
	{domain.ErrDownloadTimeout, http.StatusGatewayTimeout},
	{domain.ErrStorageFull, http.StatusInsufficientStorage},
	{domain.ErrUpstreamIO, http.StatusInternalServerError},
	{domain.ErrDiskError, http.StatusInternalServerError},
	{domain.ErrEncode, http.StatusInternalServerError},
}

// StatusCode returns the HTTP status for err and the message safe to show
// the caller. Unknown errors become a generic 500.
func StatusCode(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.kind) {
			return e.status, e.kind.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError logs err with its full chain and responds with the
// stable message only.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if errors.Is(err, domain.ErrClientGone) || errors.Is(err, context.Canceled) {
		logger.Info(op+" abandoned by client", "error", err)
		return
	}

	status, message := StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", "status", status, "error", err)
	} else {
		logger.Warn(op+" rejected", "status", status, "error", err)
	}
	writeError(w, status, message)
}

// NotFound and MethodNotAllowed keep router fallbacks in the JSON error shape.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads exactly one JSON object of at most maxBytes. Unknown
// fields are ignored so older clients keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid request body")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// publicPath is the caller-facing location of an artifact: the managed
// directory's base name joined with the filename, never the host path.
func publicPath(root, filename string) string {
	return path.Join(filepath.Base(root), filename)
}
