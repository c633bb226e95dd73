// Package transcribe submits encoded chunks to a speech-to-text backend.
package transcribe

import (
	"context"

	"github.com/voicetyped/chunkscribe/internal/encoder"
)

// Span is a timed piece of a backend response, relative to the chunk start.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the backend's answer for one chunk.
type Result struct {
	Text     string
	Language string
	Spans    []Span
}

// ModelInfo describes an available model for a backend.
type ModelInfo struct {
	ID          string
	DisplayName string
	IsDefault   bool
}

// Backend transcribes one encoded chunk per call.
type Backend interface {
	Name() string
	// Authoritative is false for stand-in backends whose text is fabricated.
	Authoritative() bool
	Transcribe(ctx context.Context, seg encoder.EncodedSegment) (Result, error)
}

// ModelLister is implemented by backends that advertise their models.
type ModelLister interface {
	Models() []ModelInfo
}
