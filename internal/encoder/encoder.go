package encoder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicetyped/chunkscribe/internal/audio"
)

// EncodedSegment is a playable payload for one segment.
type EncodedSegment struct {
	Index     int
	StartTime float64
	EndTime   float64
	MimeType  string
	Data      []byte
}

// Size returns the payload length in bytes.
func (e EncodedSegment) Size() int64 { return int64(len(e.Data)) }

// Filename is the multipart file name used when uploading the segment.
func (e EncodedSegment) Filename() string {
	return fmt.Sprintf("chunk_%03d.wav", e.Index)
}

// Encoder serializes segments as 16-bit PCM WAV.
type Encoder struct {
	maxChunkBytes int64
}

// New creates an encoder that warns when a payload exceeds maxChunkBytes.
// A non-positive limit disables the check.
func New(maxChunkBytes int64) *Encoder {
	return &Encoder{maxChunkBytes: maxChunkBytes}
}

// Encode produces the WAV payload for seg. Oversized output is logged and
// returned as is; the segmenter's budget is expected to prevent it.
func (e *Encoder) Encode(ctx context.Context, seg audio.Segment) (EncodedSegment, error) {
	if seg.SampleRate <= 0 {
		return EncodedSegment{}, fmt.Errorf("encode chunk %d: sample rate %d", seg.Index, seg.SampleRate)
	}
	if len(seg.Samples) == 0 || len(seg.Samples) != seg.Channels {
		return EncodedSegment{}, fmt.Errorf("encode chunk %d: %d sample arrays for %d channels", seg.Index, len(seg.Samples), seg.Channels)
	}
	frames := len(seg.Samples[0])
	for c, ch := range seg.Samples {
		if len(ch) != frames {
			return EncodedSegment{}, fmt.Errorf("encode chunk %d: channel %d has %d samples, want %d", seg.Index, c, len(ch), frames)
		}
	}

	out := EncodedSegment{
		Index:     seg.Index,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		MimeType:  MimeWAV,
		Data:      encodeWAV(seg.SampleRate, seg.Samples),
	}

	if e.maxChunkBytes > 0 && out.Size() > e.maxChunkBytes {
		slog.WarnContext(ctx, "encoded chunk exceeds size budget",
			slog.Int("chunk_index", seg.Index),
			slog.Int64("bytes", out.Size()),
			slog.Int64("max_bytes", e.maxChunkBytes),
		)
	}
	return out, nil
}
