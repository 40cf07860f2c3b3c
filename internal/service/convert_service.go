package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/stream"
	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
)

// Transcoder is the local decode/encode capability.
type Transcoder interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	ExtractMP3(ctx context.Context, in, out string, bitrateKbps int) error
	EncodeMP3(ctx context.Context, r io.Reader, out string, bitrateKbps int) error
}

// ConvertService produces MP3 artifacts from stored videos or directly
// from the upstream audio stream.
type ConvertService struct {
	repo       repository.ArtifactRepository
	resolver   downloader.StreamResolver
	transcoder Transcoder
	tag        func(path string, tags ffmpeg.Tags) error
	cfg        config.ConvertConfig
	logger     *slog.Logger
}

// NewConvertService creates a new conversion service.
func NewConvertService(
	repo repository.ArtifactRepository,
	resolver downloader.StreamResolver,
	transcoder Transcoder,
	cfg config.ConvertConfig,
	logger *slog.Logger,
) *ConvertService {
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 192
	}
	return &ConvertService{
		repo:       repo,
		resolver:   resolver,
		transcoder: transcoder,
		tag:        ffmpeg.TagMP3,
		cfg:        cfg,
		logger:     logger,
	}
}

// FromArtifact encodes the audio of a stored video into a sibling MP3
// with the same base name. Partial output is removed on failure.
func (s *ConvertService) FromArtifact(ctx context.Context, filename string) (*domain.Artifact, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.Wrap(domain.ErrInvalidInput, errors.New("no filename provided"))
	}

	src, err := s.repo.Stat(filename)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}

	target := repository.ReplaceExt(filename, "mp3")
	if target == filename {
		return nil, domain.Wrap(domain.ErrInvalidInput, errors.New("file is already an MP3"))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.transcoder.Probe(ctx, src.Path)
	if err != nil {
		s.logger.Error("probe failed", "filename", filename, "error", err)
		return nil, s.encodeErr(ctx, err)
	}
	if !info.HasAudio {
		return nil, domain.ErrNoAudioTrack
	}

	w, err := s.repo.Create(target)
	if err != nil {
		return nil, err
	}
	defer w.Abort()

	start := time.Now()
	if err := s.transcoder.ExtractMP3(ctx, src.Path, w.TempPath(), s.cfg.BitrateKbps); err != nil {
		s.logger.Error("audio extraction failed", "filename", filename, "error", err)
		return nil, s.encodeErr(ctx, err)
	}
	if err := checkOutput(w.TempPath()); err != nil {
		s.logger.Error("audio extraction produced no output", "filename", filename, "error", err)
		return nil, domain.Wrap(domain.ErrEncode, err)
	}

	s.writeTags(w.TempPath(), ffmpeg.Tags{Title: strings.TrimSuffix(target, ".mp3")})

	artifact, err := w.Commit()
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversion complete",
		"source", filename,
		"filename", artifact.Filename,
		"size_bytes", artifact.SizeBytes,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return artifact, nil
}

// FromSource fetches the best audio-carrying stream for rawURL and encodes
// it straight to MP3 without storing the video first.
func (s *ConvertService) FromSource(ctx context.Context, rawURL string) (*domain.Artifact, error) {
	ref, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listing, desc, err := s.resolver.Resolve(ctx, ref, stream.Selector{Quality: stream.QualityAudio})
	if err != nil {
		return nil, err
	}

	target := repository.BuildFilename(listing.Title, "", "mp3")
	w, err := s.repo.Create(target)
	if err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "convert", err)
	}
	defer w.Abort()

	body, _, err := s.resolver.Open(ctx, listing, desc)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	start := time.Now()
	if err := s.transcoder.EncodeMP3(ctx, body, w.TempPath(), s.cfg.BitrateKbps); err != nil {
		s.logger.Error("audio encoding failed",
			"video_id", ref.VideoID,
			"format_id", desc.FormatID,
			"error", err,
		)
		if errors.Is(err, ffmpeg.ErrInputRead) {
			return nil, domain.NewVideoError(ref.VideoID, "convert", domain.Wrap(domain.ErrUpstreamIO, err))
		}
		return nil, domain.NewVideoError(ref.VideoID, "convert", s.encodeErr(ctx, err))
	}
	if err := checkOutput(w.TempPath()); err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "convert", domain.Wrap(domain.ErrEncode, err))
	}

	tags := ffmpeg.Tags{
		Title:   listing.Title,
		Artist:  listing.Author,
		Comment: ref.WatchURL(),
	}
	if !listing.PublishDate.IsZero() {
		tags.Year = listing.PublishDate.Year()
	}
	s.writeTags(w.TempPath(), tags)

	artifact, err := w.Commit()
	if err != nil {
		return nil, domain.NewVideoError(ref.VideoID, "convert", err)
	}

	s.logger.Info("conversion complete",
		"video_id", ref.VideoID,
		"format_id", desc.FormatID,
		"filename", artifact.Filename,
		"size_bytes", artifact.SizeBytes,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return artifact, nil
}

func (s *ConvertService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// writeTags is best effort; a tagging failure leaves a valid untagged MP3.
func (s *ConvertService) writeTags(path string, tags ffmpeg.Tags) {
	if !s.cfg.WriteTags || s.tag == nil {
		return
	}
	if err := s.tag(path, tags); err != nil {
		s.logger.Warn("failed to write ID3 tags", "title", tags.Title, "error", err)
	}
}

// encodeErr keeps caller cancellation distinguishable from encoder failure.
func (s *ConvertService) encodeErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.Wrap(domain.ErrClientGone, ctx.Err())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.Wrap(domain.ErrEncode, fmt.Errorf("exceeded %v", s.cfg.Timeout))
	}
	return domain.Wrap(domain.ErrEncode, err)
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("empty output")
	}
	return nil
}
