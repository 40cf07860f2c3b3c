// Package stream lists the encodings of a video and picks one to download.
package stream

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Source is the extraction collaborator: it resolves a video to its
// available encodings and opens a byte channel for one of them.
type Source interface {
	// Lookup returns the video's details and encodings in upstream order.
	Lookup(ctx context.Context, ref domain.VideoReference) (*Listing, error)

	// Open returns the bytes of one encoding and its size (-1 if unknown).
	// The caller must close the reader.
	Open(ctx context.Context, listing *Listing, desc domain.StreamDescriptor) (io.ReadCloser, int64, error)
}

// Listing is the result of a Lookup.
type Listing struct {
	Reference    domain.VideoReference
	Title        string
	Author       string
	Description  string
	Duration     time.Duration
	Views        int64
	PublishDate  time.Time
	ThumbnailURL string
	Formats      []domain.StreamDescriptor

	video *youtube.Video
}

// Metadata converts the listing into VideoMetadata for callers without
// access to the Data API.
func (l *Listing) Metadata() *domain.VideoMetadata {
	return &domain.VideoMetadata{
		VideoID:      l.Reference.VideoID,
		Title:        l.Title,
		Description:  l.Description,
		ThumbnailURL: l.ThumbnailURL,
		Duration:     domain.FormatISODuration(int(l.Duration.Seconds())),
		ViewCount:    l.Views,
		PublishedAt:  l.PublishDate,
		ChannelTitle: l.Author,
	}
}

// Resolver combines a Source with the selection policy.
type Resolver struct {
	source Source
	logger *slog.Logger
}

// NewResolver creates a new stream resolver.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger,
	}
}

// ListFormats returns every encoding the upstream offers for ref.
func (r *Resolver) ListFormats(ctx context.Context, ref domain.VideoReference) (*Listing, error) {
	listing, err := r.source.Lookup(ctx, ref)
	if err != nil {
		r.logger.Warn("stream lookup failed", "video_id", ref.VideoID, "error", err)
		return nil, domain.NewVideoError(ref.VideoID, "list formats", err)
	}
	return listing, nil
}

// Resolve looks up ref and selects one encoding.
func (r *Resolver) Resolve(ctx context.Context, ref domain.VideoReference, sel Selector) (*Listing, domain.StreamDescriptor, error) {
	listing, err := r.ListFormats(ctx, ref)
	if err != nil {
		return nil, domain.StreamDescriptor{}, err
	}

	desc, err := Select(listing.Formats, sel)
	if err != nil {
		r.logger.Info("no matching format",
			"video_id", ref.VideoID,
			"format_id", sel.FormatID,
			"quality", sel.Quality,
			"available", len(listing.Formats),
		)
		return nil, domain.StreamDescriptor{}, domain.NewVideoError(ref.VideoID, "select format", err)
	}

	r.logger.Debug("format selected",
		"video_id", ref.VideoID,
		"format_id", desc.FormatID,
		"resolution", desc.ResolutionLabel,
		"bitrate", desc.Bitrate,
	)
	return listing, desc, nil
}

// Open opens the byte channel for a previously resolved encoding.
func (r *Resolver) Open(ctx context.Context, listing *Listing, desc domain.StreamDescriptor) (io.ReadCloser, int64, error) {
	rc, size, err := r.source.Open(ctx, listing, desc)
	if err != nil {
		r.logger.Warn("stream open failed",
			"video_id", listing.Reference.VideoID,
			"format_id", desc.FormatID,
			"error", err,
		)
		return nil, 0, domain.NewVideoError(listing.Reference.VideoID, "open stream", err)
	}
	return rc, size, nil
}
