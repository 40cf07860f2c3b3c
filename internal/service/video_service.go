package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/metadata"
	"github.com/iconidentify/ytgrabba/internal/stream"
	"github.com/iconidentify/ytgrabba/internal/videoid"
)

// FormatLister returns the encodings a video offers.
type FormatLister interface {
	ListFormats(ctx context.Context, ref domain.VideoReference) (*stream.Listing, error)
}

// Transferer moves a selected encoding to disk or to a caller.
type Transferer interface {
	Download(ctx context.Context, ref domain.VideoReference, sel stream.Selector) (*domain.Artifact, error)
	Stream(ctx context.Context, ref domain.VideoReference, sel stream.Selector, target downloader.StreamTarget) (*downloader.StreamResult, error)
}

// VideoService orchestrates lookups and downloads for the HTTP layer.
type VideoService struct {
	metadata   metadata.Fetcher
	formats    FormatLister
	transferer Transferer
	cfg        config.DownloadConfig
	logger     *slog.Logger
}

// NewVideoService creates a new video service. fetcher may be nil, in
// which case metadata comes from the stream listing.
func NewVideoService(
	fetcher metadata.Fetcher,
	formats FormatLister,
	transferer Transferer,
	cfg config.DownloadConfig,
	logger *slog.Logger,
) *VideoService {
	return &VideoService{
		metadata:   fetcher,
		formats:    formats,
		transferer: transferer,
		cfg:        cfg,
		logger:     logger,
	}
}

// VideoInfo is metadata plus the available encodings.
type VideoInfo struct {
	Metadata *domain.VideoMetadata
	Formats  []domain.StreamDescriptor
}

// DownloadRequest selects what to download.
type DownloadRequest struct {
	URL      string
	Quality  string
	FormatID string
}

// Info returns metadata and formats for a video URL. With the Data API
// configured its response is authoritative and the format list is best
// effort; without it both come from the stream listing.
func (s *VideoService) Info(ctx context.Context, rawURL string) (*VideoInfo, error) {
	ref, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if s.metadata == nil {
		listing, err := s.formats.ListFormats(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &VideoInfo{Metadata: listing.Metadata(), Formats: listing.Formats}, nil
	}

	meta, err := s.metadata.Fetch(ctx, ref.VideoID)
	if err != nil {
		return nil, err
	}

	info := &VideoInfo{Metadata: meta}
	listing, err := s.formats.ListFormats(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("format listing unavailable, returning metadata only",
			"video_id", ref.VideoID,
			"error", err,
		)
		return info, nil
	}
	info.Formats = listing.Formats
	return info, nil
}

// Formats returns the stream listing for a video URL.
func (s *VideoService) Formats(ctx context.Context, rawURL string) (*stream.Listing, error) {
	ref, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return s.formats.ListFormats(ctx, ref)
}

// DownloadResult is a stored download and the video it came from.
type DownloadResult struct {
	VideoID  domain.VideoID
	Artifact *domain.Artifact
}

// Download stores the selected encoding in the managed directory.
func (s *VideoService) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	ref, err := parseURL(req.URL)
	if err != nil {
		return nil, err
	}

	sel := s.selector(req)
	s.logger.Info("download requested",
		"video_id", ref.VideoID,
		"quality", sel.Quality,
		"format_id", sel.FormatID,
	)
	artifact, err := s.transferer.Download(ctx, ref, sel)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{VideoID: ref.VideoID, Artifact: artifact}, nil
}

// Stream relays the selected encoding to target without keeping it,
// unless the orchestrator is configured to keep streamed copies.
func (s *VideoService) Stream(ctx context.Context, req DownloadRequest, target downloader.StreamTarget) (*downloader.StreamResult, error) {
	ref, err := parseURL(req.URL)
	if err != nil {
		return nil, err
	}

	sel := s.selector(req)
	s.logger.Info("stream requested",
		"video_id", ref.VideoID,
		"quality", sel.Quality,
		"format_id", sel.FormatID,
	)
	return s.transferer.Stream(ctx, ref, sel, target)
}

// selector builds the format selector for a request. Downloads prefer
// encodings with both audio and video; when the caller names neither a
// quality nor a format the configured default applies, falling back to
// the best available.
func (s *VideoService) selector(req DownloadRequest) stream.Selector {
	sel := stream.Selector{
		FormatID:    strings.TrimSpace(req.FormatID),
		Quality:     strings.TrimSpace(req.Quality),
		Progressive: true,
	}
	if sel.FormatID == "" && sel.Quality == "" {
		sel.Quality = s.cfg.DefaultQuality
		sel.FallbackHighest = true
	}
	return sel
}

func parseURL(rawURL string) (domain.VideoReference, error) {
	if strings.TrimSpace(rawURL) == "" {
		return domain.VideoReference{}, domain.Wrap(domain.ErrInvalidInput, errors.New("no URL provided"))
	}
	return videoid.Parse(rawURL)
}
