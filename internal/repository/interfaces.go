package repository

import (
	"context"
	"io"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// ArtifactRepository manages files inside the managed directory.
type ArtifactRepository interface {
	// Root returns the absolute path of the managed directory.
	Root() string

	// Resolve maps a client-supplied filename to an absolute path that is a
	// direct child of the managed directory.
	Resolve(name string) (string, error)

	// Exists reports whether a complete artifact with this name is present.
	Exists(name string) bool

	// Stat returns artifact details without opening it.
	Stat(name string) (*domain.Artifact, error)

	// Open returns a reader over a complete artifact.
	Open(ctx context.Context, name string) (ArtifactReader, *domain.Artifact, error)

	// Create starts writing a new artifact. Nothing is visible under name
	// until the returned writer is committed.
	Create(name string) (*ArtifactWriter, error)

	// Delete removes an artifact.
	Delete(ctx context.Context, name string) error

	// List returns all complete artifacts, newest first.
	List(ctx context.Context) ([]domain.Artifact, error)

	// Sweep removes artifacts and stale partial files older than maxAge.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)

	// FreeBytes reports the space available to the managed directory.
	FreeBytes() int64
}

// ArtifactReader is an open artifact suitable for http.ServeContent.
type ArtifactReader interface {
	io.ReadSeekCloser
}
