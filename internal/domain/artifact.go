package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// ArtifactKind distinguishes video files from extracted audio.
type ArtifactKind string

const (
	KindVideo ArtifactKind = "video"
	KindAudio ArtifactKind = "audio"
)

// ArtifactState is the lifecycle position of a file in the managed directory.
//
//	absent -> writing -> complete -> deleted
//
// A failure while writing returns the artifact to absent.
type ArtifactState string

const (
	StateAbsent   ArtifactState = "absent"
	StateWriting  ArtifactState = "writing"
	StateComplete ArtifactState = "complete"
	StateDeleted  ArtifactState = "deleted"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".ogg":  true,
	".wav":  true,
	".flac": true,
}

// KindFromFilename derives the artifact kind from the file extension.
func KindFromFilename(name string) ArtifactKind {
	if audioExtensions[strings.ToLower(filepath.Ext(name))] {
		return KindAudio
	}
	return KindVideo
}

// Artifact is a complete file in the managed directory.
type Artifact struct {
	Filename  string       `json:"filename"`
	Path      string       `json:"-"`
	SizeBytes int64        `json:"size_bytes"`
	Kind      ArtifactKind `json:"kind"`
	ModTime   time.Time    `json:"modified_at"`
}
