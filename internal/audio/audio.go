package audio

import (
	"fmt"
	"math"
)

// RawAudio is a decoded source held as per-channel float samples in [-1, 1].
// It is created once per input and never mutated afterwards.
type RawAudio struct {
	SampleRate      int
	Channels        int
	DurationSeconds float64
	// Samples holds one slice per channel. All slices have the same length.
	Samples [][]float32
}

// NewRawAudio builds a RawAudio from per-channel sample slices and derives
// the duration from the frame count.
func NewRawAudio(sampleRate int, channels [][]float32) (*RawAudio, error) {
	raw := &RawAudio{
		SampleRate: sampleRate,
		Channels:   len(channels),
		Samples:    channels,
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	raw.DurationSeconds = float64(raw.Frames()) / float64(sampleRate)
	return raw, nil
}

// Frames returns the number of samples per channel.
func (r *RawAudio) Frames() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// Validate reports a buffer whose channels or rate are inconsistent.
func (r *RawAudio) Validate() error {
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", r.SampleRate)
	}
	if r.Channels <= 0 || len(r.Samples) != r.Channels {
		return fmt.Errorf("channel count %d does not match %d sample arrays", r.Channels, len(r.Samples))
	}
	n := len(r.Samples[0])
	for i, ch := range r.Samples {
		if len(ch) != n {
			return fmt.Errorf("channel %d has %d samples, channel 0 has %d", i, len(ch), n)
		}
	}
	if math.IsNaN(r.DurationSeconds) || math.IsInf(r.DurationSeconds, 0) || r.DurationSeconds < 0 {
		return fmt.Errorf("invalid duration %v", r.DurationSeconds)
	}
	return nil
}

// Segment is one time-bounded copy of a RawAudio slice.
type Segment struct {
	Index      int
	StartTime  float64
	EndTime    float64
	SampleRate int
	Channels   int
	Samples    [][]float32
}

// Duration returns the segment length in seconds.
func (s *Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Frames returns the number of samples per channel.
func (s *Segment) Frames() int {
	if len(s.Samples) == 0 {
		return 0
	}
	return len(s.Samples[0])
}

// deinterleave splits frame-interleaved samples into per-channel slices,
// applying scale to every value. Trailing partial frames are dropped.
func deinterleave[T int | int16 | float32](data []T, channels int, scale func(T) float32) [][]float32 {
	frames := len(data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * channels
		for c := 0; c < channels; c++ {
			out[c][f] = scale(data[base+c])
		}
	}
	return out
}
