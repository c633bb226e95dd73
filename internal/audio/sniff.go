package audio

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Canonical media types the decoder dispatches on.
const (
	MimeWAV  = "audio/wav"
	MimeMP3  = "audio/mpeg"
	MimeOGG  = "audio/ogg"
	MimeM4A  = "audio/x-m4a"
	MimeMP4A = "audio/mp4"
	MimeMP4  = "video/mp4"
	MimeMOV  = "video/quicktime"
)

const octetStream = "application/octet-stream"

// Sniff resolves the media type of blob. Content detection wins when it
// recognizes an audio or video container; otherwise the declared type is
// used, canonicalized through its known aliases.
func Sniff(blob []byte, declared string) string {
	detected := baseType(mimetype.Detect(blob).String())
	if isMedia(detected) {
		return detected
	}
	declared = baseType(declared)
	if declared == "" || declared == octetStream {
		return detected
	}
	if m := mimetype.Lookup(declared); m != nil {
		return baseType(m.String())
	}
	return declared
}

// IsVideo reports whether mimeType names a video container.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

func isMedia(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/") || IsVideo(mimeType)
}

// isISOBMFF reports whether mimeType is an MP4-family container that can be
// probed before extraction.
func isISOBMFF(mimeType string) bool {
	return mimetype.EqualsAny(mimeType, MimeM4A, MimeMP4A, MimeMP4, MimeMOV, "video/x-m4v", "video/3gpp")
}

func baseType(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return s
}
