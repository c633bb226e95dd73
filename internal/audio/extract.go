package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Extractor reduces a video or compressed-audio blob to a WAV blob.
type Extractor interface {
	ExtractAudio(ctx context.Context, blob []byte, mimeType string) ([]byte, error)
}

// FFmpegExtractor shells out to ffmpeg. Zero SampleRate or Channels keep the
// source values.
type FFmpegExtractor struct {
	Binary     string
	SampleRate int
	Channels   int
	TempDir    string
}

// ExtractAudio writes blob to a temporary file, converts its first audio
// stream to 16-bit PCM WAV and returns the result. Temporary files are
// removed on every exit path.
func (e *FFmpegExtractor) ExtractAudio(ctx context.Context, blob []byte, mimeType string) ([]byte, error) {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	dir, err := os.MkdirTemp(e.TempDir, "chunkscribe-extract-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+extensionFor(mimeType))
	out := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(in, blob, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", in, "-vn", "-acodec", "pcm_s16le"}
	if e.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(e.Channels))
	}
	if e.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(e.SampleRate))
	}
	args = append(args, "-f", "wav", out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return os.ReadFile(out)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case MimeMP4, MimeMP4A:
		return ".mp4"
	case MimeM4A:
		return ".m4a"
	case MimeMOV:
		return ".mov"
	case "video/webm", "audio/webm":
		return ".webm"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	}
	return ""
}
