package downloader

import (
	"context"
	"io"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/stream"
)

// StreamResolver picks an encoding for a video and opens its bytes.
type StreamResolver interface {
	Resolve(ctx context.Context, ref domain.VideoReference, sel stream.Selector) (*stream.Listing, domain.StreamDescriptor, error)
	Open(ctx context.Context, listing *stream.Listing, desc domain.StreamDescriptor) (io.ReadCloser, int64, error)
}

// StreamTarget receives relayed bytes. Begin is called exactly once,
// before the first Write, so the caller can set response headers.
// Targets that also implement Flush() are flushed after every chunk.
type StreamTarget interface {
	io.Writer
	Begin(filename, contentType string, size int64) error
}

type flusher interface {
	Flush()
}

// StreamResult summarizes a relayed transfer.
type StreamResult struct {
	Filename  string
	BytesSent int64
	// Artifact is set when the streamed bytes were also kept on disk.
	Artifact *domain.Artifact
}
