// Package downloader moves video bytes from the upstream into the managed
// directory or straight back to the caller.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/stream"
)

// errTimedOut is the cancellation cause when a transfer exceeds its deadline.
var errTimedOut = errors.New("download deadline exceeded")

const defaultContentType = "application/octet-stream"

// Orchestrator implements download-to-file and relay-to-caller transfers.
type Orchestrator struct {
	resolver     StreamResolver
	repo         repository.ArtifactRepository
	cfg          config.DownloadConfig
	minFreeBytes int64
	logger       *slog.Logger
}

// NewOrchestrator creates a new download orchestrator.
func NewOrchestrator(
	resolver StreamResolver,
	repo repository.ArtifactRepository,
	cfg config.DownloadConfig,
	storage config.StorageConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	return &Orchestrator{
		resolver:     resolver,
		repo:         repo,
		cfg:          cfg,
		minFreeBytes: storage.MinFreeBytes,
		logger:       logger,
	}
}

// FilenameFor derives the artifact name for an encoding of a listing.
func FilenameFor(listing *stream.Listing, desc domain.StreamDescriptor) string {
	return repository.BuildFilename(listing.Title, desc.Label(), desc.Container)
}

// Download writes the selected encoding into the managed directory and
// returns the committed artifact. On any failure the partial file is
// removed before returning.
func (o *Orchestrator) Download(ctx context.Context, ref domain.VideoReference, sel stream.Selector) (*domain.Artifact, error) {
	parent := ctx
	ctx, cancel := o.transferContext(ctx)
	defer cancel(nil)

	listing, desc, err := o.resolver.Resolve(ctx, ref, sel)
	if err != nil {
		return nil, o.phaseErr(ctx, err)
	}

	filename := FilenameFor(listing, desc)
	if err := o.checkSpace(desc.ApproxSizeBytes); err != nil {
		o.logger.Warn("insufficient space for download",
			"video_id", ref.VideoID,
			"filename", filename,
			"approx_size_bytes", desc.ApproxSizeBytes,
		)
		return nil, domain.NewVideoError(ref.VideoID, "download", err)
	}

	w, err := o.repo.Create(filename)
	if err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "download", err)
	}
	defer w.Abort()

	body, size, err := o.resolver.Open(ctx, listing, desc)
	if err != nil {
		return nil, o.phaseErr(ctx, err)
	}
	pr := newProgressReader(body, size, o.cfg.StallTimeout, o.logger, ref.VideoID)
	pr.watch(cancel)
	defer pr.Close()

	start := time.Now()
	written, readErr, writeErr := copyChunks(w, pr, make([]byte, o.cfg.ChunkSize), nil)
	if writeErr != nil {
		o.logger.Error("artifact write failed", "video_id", ref.VideoID, "filename", filename, "error", writeErr)
		return nil, domain.NewVideoError(ref.VideoID, "download", diskErr(writeErr))
	}
	if readErr != nil {
		o.logger.Warn("upstream transfer failed",
			"video_id", ref.VideoID,
			"format_id", desc.FormatID,
			"bytes", written,
			"error", readErr,
		)
		return nil, domain.NewVideoError(ref.VideoID, "download", o.transferErr(ctx, parent, readErr))
	}
	if size > 0 && written != size {
		o.logger.Warn("upstream ended early", "video_id", ref.VideoID, "bytes", written, "expected", size)
		return nil, domain.NewVideoError(ref.VideoID, "download",
			domain.Wrap(domain.ErrUpstreamIO, fmt.Errorf("received %d of %d bytes", written, size)))
	}

	artifact, err := w.Commit()
	if err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "download", err)
	}

	o.logger.Info("download complete",
		"video_id", ref.VideoID,
		"filename", artifact.Filename,
		"format_id", desc.FormatID,
		"size_bytes", artifact.SizeBytes,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return artifact, nil
}

// Stream relays the selected encoding to target in fixed-size chunks.
// When KeepStreamed is configured the bytes are also written to an
// artifact that is committed only if the relay completes.
func (o *Orchestrator) Stream(ctx context.Context, ref domain.VideoReference, sel stream.Selector, target StreamTarget) (*StreamResult, error) {
	parent := ctx
	ctx, cancel := o.transferContext(ctx)
	defer cancel(nil)

	listing, desc, err := o.resolver.Resolve(ctx, ref, sel)
	if err != nil {
		return nil, o.phaseErr(ctx, err)
	}

	body, size, err := o.resolver.Open(ctx, listing, desc)
	if err != nil {
		return nil, o.phaseErr(ctx, err)
	}
	pr := newProgressReader(body, size, o.cfg.StallTimeout, o.logger, ref.VideoID)
	pr.watch(cancel)
	defer pr.Close()

	result := &StreamResult{Filename: FilenameFor(listing, desc)}

	var tee *repository.ArtifactWriter
	if o.cfg.KeepStreamed {
		if err := o.checkSpace(desc.ApproxSizeBytes); err != nil {
			o.logger.Warn("not keeping streamed copy", "video_id", ref.VideoID, "error", err)
		} else if tee, err = o.repo.Create(result.Filename); err != nil {
			o.logger.Warn("not keeping streamed copy", "video_id", ref.VideoID, "error", err)
			tee = nil
		} else {
			defer tee.Abort()
		}
	}

	contentType := desc.MimeType
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := target.Begin(result.Filename, contentType, size); err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "stream", domain.Wrap(domain.ErrClientGone, err))
	}

	relay := &relayWriter{target: target, tee: tee, logger: o.logger, videoID: ref.VideoID}
	var flush func()
	if f, ok := target.(flusher); ok {
		flush = f.Flush
	}

	written, readErr, writeErr := copyChunks(relay, pr, make([]byte, o.cfg.ChunkSize), flush)
	result.BytesSent = written

	if writeErr != nil {
		// Stop pulling from upstream as soon as the caller is gone.
		cancel(domain.ErrClientGone)
		o.logger.Info("stream client disconnected", "video_id", ref.VideoID, "bytes_sent", written)
		return result, domain.NewVideoError(ref.VideoID, "stream", domain.Wrap(domain.ErrClientGone, writeErr))
	}
	if readErr != nil {
		o.logger.Warn("upstream relay failed",
			"video_id", ref.VideoID,
			"format_id", desc.FormatID,
			"bytes_sent", written,
			"error", readErr,
		)
		return result, domain.NewVideoError(ref.VideoID, "stream", o.transferErr(ctx, parent, readErr))
	}
	if size > 0 && written != size {
		return result, domain.NewVideoError(ref.VideoID, "stream",
			domain.Wrap(domain.ErrUpstreamIO, fmt.Errorf("relayed %d of %d bytes", written, size)))
	}

	if relay.tee != nil {
		artifact, err := relay.tee.Commit()
		if err != nil {
			o.logger.Warn("failed to keep streamed copy", "video_id", ref.VideoID, "error", err)
		} else {
			result.Artifact = artifact
		}
	}

	o.logger.Info("stream complete",
		"video_id", ref.VideoID,
		"filename", result.Filename,
		"bytes_sent", written,
	)
	return result, nil
}

// transferContext bounds a transfer by the configured timeout. The
// returned cancel also carries the stall cause.
func (o *Orchestrator) transferContext(ctx context.Context) (context.Context, context.CancelCauseFunc) {
	if o.cfg.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, o.cfg.Timeout, errTimedOut)
		inner, cancel := context.WithCancelCause(ctx)
		return inner, func(cause error) {
			cancel(cause)
			stop()
		}
	}
	return context.WithCancelCause(ctx)
}

func (o *Orchestrator) checkSpace(need int64) error {
	free := o.repo.FreeBytes()
	if free <= 0 {
		// Unknown; let the write itself fail if the disk fills up.
		return nil
	}
	if need < 0 {
		need = 0
	}
	if free-need < o.minFreeBytes {
		return domain.Wrap(domain.ErrStorageFull, fmt.Errorf("need %d bytes, %d free", need, free))
	}
	return nil
}

// phaseErr maps a resolve or open failure, turning deadline expiry into
// a download timeout.
func (o *Orchestrator) phaseErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errTimedOut) || errors.Is(cause, errStalled) {
		return domain.Wrap(domain.ErrDownloadTimeout, err)
	}
	return err
}

// transferErr classifies a mid-transfer read failure.
func (o *Orchestrator) transferErr(ctx, parent context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errStalled):
		return domain.Wrap(domain.ErrDownloadTimeout, fmt.Errorf("no data for %v", o.cfg.StallTimeout))
	case errors.Is(cause, errTimedOut):
		return domain.Wrap(domain.ErrDownloadTimeout, fmt.Errorf("exceeded %v", o.cfg.Timeout))
	case parent.Err() != nil:
		return domain.Wrap(domain.ErrClientGone, parent.Err())
	}
	return domain.Wrap(domain.ErrUpstreamIO, err)
}

func diskErr(err error) error {
	if errors.Is(err, domain.ErrStorageFull) || errors.Is(err, domain.ErrDiskError) {
		return err
	}
	return domain.Wrap(domain.ErrDiskError, err)
}

// copyChunks copies src to dst one buffer at a time, calling flush after
// every successful write. Read and write failures are reported separately.
func copyChunks(dst io.Writer, src io.Reader, buf []byte, flush func()) (written int64, readErr, writeErr error) {
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr == nil && wn < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, nil, werr
			}
			if flush != nil {
				flush()
			}
		}
		if rerr == io.EOF {
			return written, nil, nil
		}
		if rerr != nil {
			return written, rerr, nil
		}
	}
}

// relayWriter writes to the caller and, best effort, to a kept copy.
// Only caller failures are returned.
type relayWriter struct {
	target  io.Writer
	tee     *repository.ArtifactWriter
	logger  *slog.Logger
	videoID domain.VideoID
}

func (r *relayWriter) Write(p []byte) (int, error) {
	n, err := r.target.Write(p)
	if err != nil {
		return n, err
	}
	if r.tee != nil {
		if _, terr := r.tee.Write(p); terr != nil {
			r.logger.Warn("dropping streamed copy", "video_id", r.videoID, "error", terr)
			r.tee.Abort()
			r.tee = nil
		}
	}
	return n, nil
}
