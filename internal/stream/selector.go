package stream

import (
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Quality tokens understood by Select in addition to resolution labels.
const (
	QualityHighest = "highest"
	QualityLowest  = "lowest"
	QualityAudio   = "audio"
)

// Selector describes which encoding a caller wants.
type Selector struct {
	// FormatID is an opaque upstream format identifier (itag).
	FormatID string
	// Quality is a resolution label such as "720p" or one of the tokens.
	Quality string
	// Progressive restricts label and bitrate matching to encodings with
	// both audio and video, when the upstream offers any.
	Progressive bool
	// FallbackHighest picks the highest entry of the pool when a
	// resolution label has no match. Used for server-side defaults.
	FallbackHighest bool
}

// Select applies the selection policy in order:
//
//  1. exact FormatID match
//  2. exact resolution label match (case-insensitive)
//  3. "highest": maximum bitrate among video-capable entries
//  4. "lowest": minimum bitrate among video-capable entries
//  5. "audio": maximum bitrate among audio-only entries
//
// Bitrate ties go to the entry that comes first in upstream order.
// An empty selector means "highest".
func Select(formats []domain.StreamDescriptor, sel Selector) (domain.StreamDescriptor, error) {
	if sel.FormatID != "" {
		for _, f := range formats {
			if f.FormatID == sel.FormatID {
				return f, nil
			}
		}
		if sel.Quality == "" {
			return domain.StreamDescriptor{}, domain.ErrFormatUnavailable
		}
	}

	pool := formats
	if sel.Progressive {
		if progressive := filter(formats, domain.StreamDescriptor.Progressive); len(progressive) > 0 {
			pool = progressive
		}
	}

	quality := strings.ToLower(strings.TrimSpace(sel.Quality))
	switch quality {
	case "", QualityHighest, "best":
		return pickByBitrate(videoCapable(pool), higher)
	case QualityLowest, "worst":
		return pickByBitrate(videoCapable(pool), lower)
	case QualityAudio, "bestaudio":
		audio := filter(formats, domain.StreamDescriptor.AudioOnly)
		if len(audio) == 0 {
			audio = filter(formats, func(d domain.StreamDescriptor) bool { return d.HasAudio })
		}
		return pickByBitrate(audio, higher)
	}

	for _, f := range pool {
		if f.ResolutionLabel != "" && strings.EqualFold(f.ResolutionLabel, quality) {
			return f, nil
		}
	}
	if sel.FallbackHighest {
		return pickByBitrate(videoCapable(pool), higher)
	}
	return domain.StreamDescriptor{}, domain.ErrFormatUnavailable
}

func higher(a, b int) bool { return a > b }
func lower(a, b int) bool  { return a < b }

// pickByBitrate returns the first entry whose bitrate beats every other
// under better. Strict comparison keeps the earliest entry on ties.
func pickByBitrate(formats []domain.StreamDescriptor, better func(a, b int) bool) (domain.StreamDescriptor, error) {
	if len(formats) == 0 {
		return domain.StreamDescriptor{}, domain.ErrFormatUnavailable
	}
	best := formats[0]
	for _, f := range formats[1:] {
		if better(f.Bitrate, best.Bitrate) {
			best = f
		}
	}
	return best, nil
}

// videoCapable narrows to entries carrying video. When no entry is marked
// as video the list is returned unchanged, so bare bitrate lists still work.
func videoCapable(formats []domain.StreamDescriptor) []domain.StreamDescriptor {
	if video := filter(formats, func(d domain.StreamDescriptor) bool { return d.HasVideo }); len(video) > 0 {
		return video
	}
	return formats
}

func filter(formats []domain.StreamDescriptor, keep func(domain.StreamDescriptor) bool) []domain.StreamDescriptor {
	var out []domain.StreamDescriptor
	for _, f := range formats {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
