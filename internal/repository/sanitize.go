package repository

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameBytes caps a derived artifact name in bytes. Filesystems limit a
// name to 255 bytes and the temporary name adds a prefix and a
// ".xxxxxxxx.part" suffix, so this leaves room for both.
const maxNameBytes = 200

// maxSuffixBytes caps the quality or format suffix.
const maxSuffixBytes = 32

var (
	unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\-. ]`)
	unsafeExtChars  = regexp.MustCompile(`[^a-z0-9]`)
)

// Sanitize turns an upstream title into a safe base filename. Every
// character outside word characters, space, hyphen, underscore and period
// becomes an underscore. Leading periods are dropped so the result is never
// hidden or a parent reference.
func Sanitize(title string) string {
	s := unsafeNameChars.ReplaceAllString(title, "_")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ". ")
	s = strings.TrimRight(s, ". ")

	s = strings.TrimRight(truncateBytes(s, maxNameBytes), ". ")
	if s == "" {
		return "video"
	}
	return s
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// BuildFilename derives an artifact name from a title, a quality or format
// suffix and a container extension: "<title>_<suffix>.<ext>". The title is
// shortened so the whole name stays within maxNameBytes.
func BuildFilename(title, suffix, ext string) string {
	var tail string
	if s := strings.TrimSpace(suffix); s != "" {
		s = strings.ReplaceAll(Sanitize(s), " ", "_")
		tail = "_" + truncateBytes(s, maxSuffixBytes)
	}
	if ext = unsafeExtChars.ReplaceAllString(strings.ToLower(ext), ""); ext != "" {
		tail += "." + truncateBytes(ext, 8)
	}

	base := strings.TrimRight(truncateBytes(Sanitize(title), maxNameBytes-len(tail)), ". ")
	if base == "" {
		base = "video"
	}
	return base + tail
}

// ReplaceExt swaps the extension of an existing artifact name.
func ReplaceExt(name, ext string) string {
	base := name
	if i := strings.LastIndex(name, "."); i > 0 {
		base = name[:i]
	}
	return base + "." + ext
}
