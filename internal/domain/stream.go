package domain

// StreamDescriptor is one selectable encoding of a video.
// Zero values mean "unknown" for the optional fields.
type StreamDescriptor struct {
	FormatID        string `json:"format_id"`
	Container       string `json:"container"`
	ResolutionLabel string `json:"resolution,omitempty"`
	Bitrate         int    `json:"bitrate"`
	AudioCodec      string `json:"audio_codec,omitempty"`
	VideoCodec      string `json:"video_codec,omitempty"`
	ApproxSizeBytes int64  `json:"approx_size_bytes,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	HasAudio        bool   `json:"has_audio"`
	HasVideo        bool   `json:"has_video"`
}

// Progressive reports whether the encoding carries both audio and video.
func (d StreamDescriptor) Progressive() bool {
	return d.HasAudio && d.HasVideo
}

// AudioOnly reports whether the encoding carries audio and no video.
func (d StreamDescriptor) AudioOnly() bool {
	return d.HasAudio && !d.HasVideo
}

// Label returns a short suffix suitable for filenames: the resolution
// label when present, otherwise the format ID.
func (d StreamDescriptor) Label() string {
	if d.ResolutionLabel != "" {
		return d.ResolutionLabel
	}
	if d.AudioOnly() {
		return "audio"
	}
	return d.FormatID
}
