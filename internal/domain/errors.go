package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidInput is returned when a request field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidURL is returned when no video ID can be extracted from a URL.
	ErrInvalidURL = errors.New("invalid YouTube URL")

	// ErrInvalidPath is returned when a filename would resolve outside the
	// managed directory.
	ErrInvalidPath = errors.New("invalid file path")

	// ErrVideoNotFound is returned when the upstream has no such video.
	ErrVideoNotFound = errors.New("video not found")

	// ErrFormatUnavailable is returned when no encoding matches the selector.
	ErrFormatUnavailable = errors.New("requested format not available")

	// ErrArtifactNotFound is returned when a file is absent from the managed directory.
	ErrArtifactNotFound = errors.New("file not found")

	// ErrSourceNotFound is returned when a conversion source file is absent.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrUpstreamUnavailable is returned when a metadata or extraction call fails.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrMalformedResponse is returned when the upstream response lacks expected fields.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrUpstreamIO is returned when the byte stream fails mid-transfer.
	ErrUpstreamIO = errors.New("upstream stream error")

	// ErrDownloadTimeout is returned when a transfer exceeds its deadline or stalls.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrDiskError is returned when a local write fails.
	ErrDiskError = errors.New("disk write failed")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrEncode is returned when audio extraction or encoding fails.
	ErrEncode = errors.New("audio encoding failed")

	// ErrNoAudioTrack is returned when the source has no audio stream.
	ErrNoAudioTrack = errors.New("source has no audio track")

	// ErrRateLimited is returned when a client exceeds its request quota.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrClientGone is returned when the caller disconnects mid-stream.
	ErrClientGone = errors.New("client disconnected")
)

// VideoError wraps an error with video context.
type VideoError struct {
	VideoID VideoID
	Op      string
	Err     error
}

func (e *VideoError) Error() string {
	if e.VideoID != "" {
		return e.Op + " [" + e.VideoID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *VideoError) Unwrap() error {
	return e.Err
}

// NewVideoError creates a new VideoError.
func NewVideoError(videoID VideoID, op string, err error) *VideoError {
	return &VideoError{
		VideoID: videoID,
		Op:      op,
		Err:     err,
	}
}

// Wrap joins a taxonomy sentinel with the underlying cause so that both
// errors.Is(err, kind) and the original error chain remain available.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &kindError{kind: kind, cause: cause}
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
