package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
)

// YouTubeSource implements Source with github.com/kkdai/youtube. Stream URLs
// always come from a live player request made by the library.
type YouTubeSource struct {
	client *youtube.Client
	logger *slog.Logger
}

// NewYouTubeSource creates a source whose HTTP requests carry the configured
// user agent. The client has no overall timeout; transfers are bounded by
// the request context.
func NewYouTubeSource(cfg config.DownloadConfig, logger *slog.Logger) *YouTubeSource {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}

	return &YouTubeSource{
		client: &youtube.Client{
			HTTPClient: &http.Client{
				Transport: &userAgentTransport{base: transport, userAgent: cfg.UserAgent},
			},
		},
		logger: logger,
	}
}

// Lookup fetches the player response for ref and converts its formats.
func (s *YouTubeSource) Lookup(ctx context.Context, ref domain.VideoReference) (*Listing, error) {
	video, err := s.client.GetVideoContext(ctx, ref.WatchURL())
	if err != nil {
		return nil, classifyError(err)
	}

	return newListing(ref, video), nil
}

// Open starts the transfer of one encoding.
func (s *YouTubeSource) Open(ctx context.Context, listing *Listing, desc domain.StreamDescriptor) (io.ReadCloser, int64, error) {
	if listing == nil || listing.video == nil {
		return nil, 0, fmt.Errorf("listing was not produced by this source")
	}

	itag, err := strconv.Atoi(desc.FormatID)
	if err != nil {
		return nil, 0, domain.ErrFormatUnavailable
	}
	formats := listing.video.Formats.Itag(itag)
	if len(formats) == 0 {
		return nil, 0, domain.ErrFormatUnavailable
	}

	rc, size, err := s.client.GetStreamContext(ctx, listing.video, &formats[0])
	if err != nil {
		return nil, 0, classifyError(err)
	}
	return rc, size, nil
}

func newListing(ref domain.VideoReference, video *youtube.Video) *Listing {
	listing := &Listing{
		Reference:   ref,
		Title:       video.Title,
		Author:      video.Author,
		Description: video.Description,
		Duration:    video.Duration,
		Views:       int64(video.Views),
		PublishDate: video.PublishDate,
		Formats:     make([]domain.StreamDescriptor, 0, len(video.Formats)),
		video:       video,
	}

	// Thumbnails are ordered smallest first.
	if n := len(video.Thumbnails); n > 0 {
		listing.ThumbnailURL = video.Thumbnails[n-1].URL
	}

	for _, f := range video.Formats {
		listing.Formats = append(listing.Formats, describeFormat(f))
	}
	return listing
}

// describeFormat maps an upstream format onto a StreamDescriptor.
func describeFormat(f youtube.Format) domain.StreamDescriptor {
	mediaType, codecs := parseMimeType(f.MimeType)

	d := domain.StreamDescriptor{
		FormatID:        strconv.Itoa(f.ItagNo),
		Container:       containerFor(mediaType),
		Bitrate:         f.Bitrate,
		ApproxSizeBytes: f.ContentLength,
		MimeType:        mediaType,
	}
	if d.Bitrate <= 0 {
		d.Bitrate = f.AverageBitrate
	}

	for _, c := range codecs {
		switch {
		case isAudioCodec(c):
			if d.AudioCodec == "" {
				d.AudioCodec = c
			}
		case d.VideoCodec == "":
			d.VideoCodec = c
		}
	}

	d.HasVideo = strings.HasPrefix(mediaType, "video/") && (d.VideoCodec != "" || f.Width > 0 || f.QualityLabel != "")
	d.HasAudio = f.AudioChannels > 0 || d.AudioCodec != "" || strings.HasPrefix(mediaType, "audio/")
	if d.HasVideo {
		d.ResolutionLabel = f.QualityLabel
	}
	return d
}

// parseMimeType splits `video/mp4; codecs="avc1.42001E, mp4a.40.2"`.
func parseMimeType(mime string) (string, []string) {
	mediaType, params, _ := strings.Cut(mime, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	_, list, ok := strings.Cut(params, "codecs=")
	if !ok {
		return mediaType, nil
	}
	list = strings.Trim(strings.TrimSpace(list), `"`)

	var codecs []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return mediaType, codecs
}

func isAudioCodec(codec string) bool {
	c := strings.ToLower(codec)
	for _, prefix := range []string{"mp4a", "opus", "vorbis", "ac-3", "ec-3", "flac", "mp3"} {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func containerFor(mediaType string) string {
	switch mediaType {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	case "audio/mpeg":
		return "mp3"
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return sub
	}
	return "bin"
}

// classifyError maps library errors onto the domain taxonomy.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &statusErr) {
		if int(statusErr) == http.StatusNotFound {
			return domain.Wrap(domain.ErrVideoNotFound, err)
		}
		return domain.Wrap(domain.ErrUpstreamUnavailable, err)
	}

	if isUnavailableVideo(err) {
		return domain.Wrap(domain.ErrVideoNotFound, err)
	}
	return domain.Wrap(domain.ErrUpstreamUnavailable, err)
}

func isUnavailableVideo(err error) bool {
	message := strings.ToLower(err.Error())
	markers := []string{
		"video unavailable",
		"content unavailable",
		"not available",
		"private",
		"has been removed",
		"does not exist",
		"invalid characters in video id",
	}
	for _, marker := range markers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// userAgentTransport sets browser-like headers on upstream requests that
// do not carry their own.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
		if req.Header.Get("Accept-Language") == "" {
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		}
	}
	return t.base.RoundTrip(req)
}
