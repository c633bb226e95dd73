package chunker

import (
	"math"

	"github.com/voicetyped/chunkscribe/internal/audio"
)

// Bounds is a planned segment before its samples are copied.
type Bounds struct {
	Index          int
	StartTime      float64
	EndTime        float64
	EstimatedBytes int64
}

// Segmenter derives segment boundaries from a byte budget and copies the
// corresponding samples out of a RawAudio.
type Segmenter struct {
	enc Encoding
}

// New creates a segmenter sized for the given encoding.
func New(enc Encoding) *Segmenter {
	return &Segmenter{enc: enc}
}

// MaxDurationForSize is the longest whole-second duration whose encoded
// size, with a 5% margin, fits in maxChunkBytes.
func (s *Segmenter) MaxDurationForSize(sampleRate, channels int, maxChunkBytes int64) float64 {
	bps := s.enc.BytesPerSecond(sampleRate, channels)
	if bps <= 0 {
		return 0
	}
	budget := float64(maxChunkBytes)*sizeSafetyMargin - float64(s.enc.HeaderOverheadBytes())
	return math.Floor(budget / float64(bps))
}

// EffectiveDuration clamps the target duration to the byte budget and then
// raises it to the MinDurationSeconds floor.
func (s *Segmenter) EffectiveDuration(sampleRate, channels int, cfg Config) float64 {
	maxDur := s.MaxDurationForSize(sampleRate, channels, cfg.MaxChunkBytes)
	return math.Max(MinDurationSeconds, math.Min(cfg.TargetDurationSeconds, maxDur))
}

// Plan computes segment boundaries for a source of the given duration.
// A zero duration yields no segments.
func (s *Segmenter) Plan(durationSeconds float64, sampleRate, channels int, cfg Config) ([]Bounds, error) {
	if err := s.validate(sampleRate, channels, cfg); err != nil {
		return nil, err
	}
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds < 0 {
		return nil, configErr("duration", "invalid source duration %v", durationSeconds)
	}

	eff := s.EffectiveDuration(sampleRate, channels, cfg)
	bps := s.enc.BytesPerSecond(sampleRate, channels)
	header := s.enc.HeaderOverheadBytes()

	if cfg.OverlapSeconds >= eff {
		return nil, configErr("overlap_seconds", "%.2fs overlap must be shorter than the %.0fs segment length", cfg.OverlapSeconds, eff)
	}
	if est := estimate(eff, bps, header); est > cfg.MaxChunkBytes {
		return nil, configErr("max_chunk_size", "a %.0fs segment needs %d bytes, budget is %d", eff, est, cfg.MaxChunkBytes)
	}
	if cfg.OverlapSeconds > 0 {
		if est := estimate(eff+cfg.OverlapSeconds, bps, header); est > cfg.MaxChunkBytes {
			fit := float64(cfg.MaxChunkBytes-header)/float64(bps) - eff
			fit = math.Max(0, math.Floor(fit*100)/100)
			return nil, configErr("overlap_seconds", "%.0fs segments with %.2fs overlap need %d bytes, budget is %d; reduce overlap_seconds to %.2f or less",
				eff, cfg.OverlapSeconds, est, cfg.MaxChunkBytes, fit)
		}
	}

	var out []Bounds
	for i := 0; ; i++ {
		t := float64(i) * eff
		if t >= durationSeconds {
			break
		}
		start := math.Max(0, t-cfg.OverlapSeconds)
		end := math.Min(durationSeconds, t+eff)
		if frames(end-start, sampleRate) == 0 {
			// A tail shorter than one sample joins the previous segment.
			if n := len(out); n > 0 {
				out[n-1].EndTime = end
				out[n-1].EstimatedBytes = estimate(end-out[n-1].StartTime, bps, header)
			}
			break
		}
		out = append(out, Bounds{
			Index:          i,
			StartTime:      start,
			EndTime:        end,
			EstimatedBytes: estimate(end-start, bps, header),
		})
	}
	return out, nil
}

// Materialize copies the samples covered by b into a new Segment. Indices
// past the end of the source are zero-filled.
func Materialize(raw *audio.RawAudio, b Bounds) audio.Segment {
	first := int(math.Round(b.StartTime * float64(raw.SampleRate)))
	n := frames(b.EndTime-b.StartTime, raw.SampleRate)

	samples := make([][]float32, raw.Channels)
	for c := range samples {
		dst := make([]float32, n)
		src := raw.Samples[c]
		if first < len(src) {
			copy(dst, src[first:])
		}
		samples[c] = dst
	}

	return audio.Segment{
		Index:      b.Index,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		SampleRate: raw.SampleRate,
		Channels:   raw.Channels,
		Samples:    samples,
	}
}

// Split plans and materializes every segment of raw.
func (s *Segmenter) Split(raw *audio.RawAudio, cfg Config) ([]audio.Segment, error) {
	bounds, err := s.Plan(raw.DurationSeconds, raw.SampleRate, raw.Channels, cfg)
	if err != nil {
		return nil, err
	}
	segments := make([]audio.Segment, 0, len(bounds))
	for _, b := range bounds {
		segments = append(segments, Materialize(raw, b))
	}
	return segments, nil
}

func (s *Segmenter) validate(sampleRate, channels int, cfg Config) error {
	switch {
	case sampleRate <= 0:
		return configErr("sample_rate", "must be positive, got %d", sampleRate)
	case channels <= 0:
		return configErr("channels", "must be positive, got %d", channels)
	case math.IsNaN(cfg.TargetDurationSeconds) || cfg.TargetDurationSeconds <= 0:
		return configErr("chunk_duration_seconds", "must be positive, got %v", cfg.TargetDurationSeconds)
	case math.IsNaN(cfg.OverlapSeconds) || cfg.OverlapSeconds < 0:
		return configErr("overlap_seconds", "must not be negative, got %v", cfg.OverlapSeconds)
	case cfg.MaxChunkBytes <= s.enc.HeaderOverheadBytes():
		return configErr("max_chunk_size", "%d bytes cannot hold a %d byte header", cfg.MaxChunkBytes, s.enc.HeaderOverheadBytes())
	case s.enc.BytesPerSecond(sampleRate, channels) <= 0:
		return configErr("encoding", "non-positive byte rate")
	}
	return nil
}

func estimate(seconds float64, bytesPerSecond, header int64) int64 {
	return int64(math.Ceil(seconds*float64(bytesPerSecond))) + header
}

func frames(seconds float64, sampleRate int) int {
	return int(math.Round(seconds * float64(sampleRate)))
}
