package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Format is an output encoding for a transcript.
type Format string

const (
	TXT  Format = "txt"
	SRT  Format = "srt"
	VTT  Format = "vtt"
	JSON Format = "json"
)

// Formats lists every supported format in a stable order.
var Formats = []Format{TXT, SRT, VTT, JSON}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the media type served for the format.
func (f Format) ContentType() string {
	switch f {
	case SRT:
		return "application/x-subrip"
	case VTT:
		return "text/vtt; charset=utf-8"
	case JSON:
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// Filename derives the suggested download name from the source file name.
func Filename(sourceName string, f Format) string {
	base := filepath.Base(sourceName)
	if base == "." || base == string(filepath.Separator) {
		base = "transcript"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	if f == TXT {
		return stem + "_transcript.txt"
	}
	return stem + "." + string(f)
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func FormatDuration(seconds float64) string {
	total := int64(math.Floor(math.Max(0, seconds)))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// SRTTimestamp renders HH:MM:SS,mmm.
func SRTTimestamp(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// VTTTimestamp renders HH:MM:SS.mmm, dropping the hours when they are zero.
func VTTTimestamp(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	if h == 0 {
		return fmt.Sprintf("%02d:%02d.%03d", m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitMillis(seconds float64) (h, m, s, ms int64) {
	total := int64(math.Round(math.Max(0, seconds) * 1000))
	ms = total % 1000
	total /= 1000
	return total / 3600, (total % 3600) / 60, total % 60, ms
}
