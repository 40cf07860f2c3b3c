package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// ErrInputRead is returned by EncodeMP3 when the source reader fails
// before ffmpeg has consumed all input.
var ErrInputRead = errors.New("ffmpeg: input read failed")

// maxStderr bounds how much ffmpeg diagnostic output is kept for errors.
const maxStderr = 2048

// Processor transcodes media with ffmpeg and inspects it with ffprobe.
type Processor struct {
	ffmpegPath   string
	probeTimeout time.Duration
}

// NewProcessor creates a new processor. ffmpegPath may be a bare command
// name resolved through PATH. ffprobe is always resolved through PATH.
func NewProcessor(ffmpegPath string, probeTimeout time.Duration) (*Processor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}

	return &Processor{
		ffmpegPath:   resolved,
		probeTimeout: probeTimeout,
	}, nil
}

// MediaInfo contains stream metadata about a media file.
type MediaInfo struct {
	Duration   float64 // Duration in seconds
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	VideoCodec string
	Bitrate    int64
	FileSize   int64
}

// Probe inspects the media file at path.
func (p *Processor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := p.probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	output, err := ffmpeggo.ProbeWithTimeout(path, timeout, ffmpeggo.KwArgs{"v": "quiet"})
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbeOutput([]byte(output))
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

func parseProbeOutput(output []byte) (*MediaInfo, error) {
	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = dur
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			// Cover art shows up as an mjpeg/png video stream.
			if s.CodecName == "mjpeg" || s.CodecName == "png" {
				continue
			}
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
		}
	}
	return info, nil
}

// mp3Args builds the ffmpeg argument list for an audio-only MP3 encode.
// The output format is forced so out may carry any extension.
func mp3Args(in, out string, kbps int) []string {
	return ffmpeggo.Input(in).
		Output(out, ffmpeggo.KwArgs{
			"vn":     "",
			"acodec": "libmp3lame",
			"b:a":    fmt.Sprintf("%dk", kbps),
			"f":      "mp3",
		}).
		OverWriteOutput().
		GetArgs()
}

// ExtractMP3 encodes the audio track of the file at in into an MP3 at out.
func (p *Processor) ExtractMP3(ctx context.Context, in, out string, kbps int) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, mp3Args(in, out, kbps)...)
	stderr := &tailBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg extract: %w: %s", err, stderr.String())
	}
	return nil
}

// EncodeMP3 reads media from r and encodes its audio into an MP3 at out.
// A failure reading r is reported as ErrInputRead.
func (p *Processor) EncodeMP3(ctx context.Context, r io.Reader, out string, kbps int) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, mp3Args("pipe:0", out, kbps)...)
	stderr := &tailBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	src := &readRecorder{r: r}
	_, copyErr := io.Copy(stdin, src)
	stdin.Close()
	waitErr := cmd.Wait()

	if src.err != nil {
		return fmt.Errorf("%w: %w", ErrInputRead, src.err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", waitErr, stderr.String())
	}
	if copyErr != nil {
		return fmt.Errorf("ffmpeg encode: %w", copyErr)
	}
	return nil
}

// readRecorder remembers the first non-EOF error from the wrapped reader.
type readRecorder struct {
	r   io.Reader
	err error
}

func (rr *readRecorder) Read(b []byte) (int, error) {
	n, err := rr.r.Read(b)
	if err != nil && err != io.EOF && rr.err == nil {
		rr.err = err
	}
	return n, err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.buf.Write(b)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}

// IsAvailable checks if ffmpeg and ffprobe are available on the system.
func IsAvailable(ffmpegPath string) bool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// GetVersion returns the ffmpeg version string.
func GetVersion(ffmpegPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	output, err := exec.Command(ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}
