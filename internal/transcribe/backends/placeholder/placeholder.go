// Package placeholder fabricates transcripts locally so a run can complete
// without any remote credentials.
package placeholder

import (
	"context"
	"fmt"

	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
)

func init() {
	transcribe.Backends.Register(transcribe.PlaceholderName, func(transcribe.Settings) (transcribe.Backend, error) {
		return New(), nil
	})
}

// Backend returns a marked stand-in text for every chunk.
type Backend struct{}

// New creates the placeholder backend.
func New() *Backend { return &Backend{} }

func (*Backend) Name() string        { return transcribe.PlaceholderName }
func (*Backend) Authoritative() bool { return false }

func (*Backend) Transcribe(ctx context.Context, seg encoder.EncodedSegment) (transcribe.Result, error) {
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, err
	}
	return transcribe.Result{Text: Text(seg.Index, seg.StartTime, seg.EndTime)}, nil
}

// Text is the stand-in transcript for a chunk.
func Text(index int, start, end float64) string {
	return fmt.Sprintf("[placeholder transcript for chunk %d (%.1f-%.1f s); configure an API key for real transcription]",
		index+1, start, end)
}
