package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// ErrWriterClosed is returned when writing to a committed or aborted writer.
var ErrWriterClosed = errors.New("artifact writer already closed")

// ArtifactWriter is an artifact in the writing state. Exactly one of Commit
// or Abort takes effect; calling Abort after Commit is a no-op, so
//
//	w, err := repo.Create(name)
//	defer w.Abort()
//
// is the cleanup idiom.
type ArtifactWriter struct {
	repo     *FilesystemArtifactRepository
	name     string
	path     string
	tempPath string
	file     *os.File
	written  int64
	maxSize  int64
	done     bool
}

// Name returns the final filename the artifact will have once committed.
func (w *ArtifactWriter) Name() string {
	return w.name
}

// TempPath returns the hidden path bytes are written to before commit.
// External encoders may write to it directly instead of calling Write.
func (w *ArtifactWriter) TempPath() string {
	return w.tempPath
}

// Written returns the number of bytes passed through Write.
func (w *ArtifactWriter) Written() int64 {
	return w.written
}

func (w *ArtifactWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrWriterClosed
	}
	if w.maxSize > 0 && w.written+int64(len(p)) > w.maxSize {
		return 0, domain.Wrap(domain.ErrStorageFull, fmt.Errorf("artifact exceeds %d bytes", w.maxSize))
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, domain.Wrap(domain.ErrDiskError, err)
	}
	return n, nil
}

// Commit flushes the temporary file and atomically renames it into place.
func (w *ArtifactWriter) Commit() (*domain.Artifact, error) {
	if w.done {
		return nil, ErrWriterClosed
	}
	w.done = true
	defer w.repo.release(w.name)

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tempPath)
		return nil, domain.Wrap(domain.ErrDiskError, fmt.Errorf("sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tempPath)
		return nil, domain.Wrap(domain.ErrDiskError, fmt.Errorf("close: %w", err))
	}

	if err := os.Rename(w.tempPath, w.path); err != nil {
		os.Remove(w.tempPath)
		return nil, domain.Wrap(domain.ErrDiskError, fmt.Errorf("move to final location: %w", err))
	}

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDiskError, err)
	}

	w.repo.logger.Info("artifact committed", "filename", w.name, "size_bytes", info.Size())
	return newArtifact(w.name, w.path, info), nil
}

// Abort discards the partial file. It is safe to call more than once.
func (w *ArtifactWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.repo.release(w.name)

	w.file.Close()
	if err := os.Remove(w.tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.repo.logger.Warn("failed to remove partial artifact", "filename", w.name, "error", err)
		return domain.Wrap(domain.ErrDiskError, err)
	}

	w.repo.logger.Debug("partial artifact discarded", "filename", w.name, "bytes_written", w.written)
	return nil
}
