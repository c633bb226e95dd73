package chunker

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/voicetyped/chunkscribe/internal/audio"
)

// pcm16 mirrors the 16-bit WAV sizing used in production.
type pcm16 struct{}

func (pcm16) HeaderOverheadBytes() int64 { return 44 }

func (pcm16) BytesPerSecond(sampleRate, channels int) int64 {
	return int64(sampleRate) * int64(channels) * 2
}

func TestPlanOverlapKeepsCadence(t *testing.T) {
	s := New(pcm16{})
	bounds, err := s.Plan(130, 16000, 1, Config{
		TargetDurationSeconds: 120,
		OverlapSeconds:        5,
		MaxChunkBytes:         DefaultMaxChunkBytes,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []Bounds{
		{Index: 0, StartTime: 0, EndTime: 120},
		{Index: 1, StartTime: 115, EndTime: 130},
	}
	if len(bounds) != len(want) {
		t.Fatalf("got %d segments, want %d: %+v", len(bounds), len(want), bounds)
	}
	for i := range want {
		if bounds[i].Index != want[i].Index || bounds[i].StartTime != want[i].StartTime || bounds[i].EndTime != want[i].EndTime {
			t.Errorf("segment %d = %+v, want %+v", i, bounds[i], want[i])
		}
	}
}

func TestEffectiveDurationFloor(t *testing.T) {
	s := New(pcm16{})
	cfg := Config{TargetDurationSeconds: 120, MaxChunkBytes: 117942}

	if got := s.MaxDurationForSize(16000, 1, cfg.MaxChunkBytes); got != 3 {
		t.Fatalf("MaxDurationForSize = %v, want 3", got)
	}
	if got := s.EffectiveDuration(16000, 1, cfg); got != MinDurationSeconds {
		t.Errorf("EffectiveDuration = %v, want %d", got, MinDurationSeconds)
	}

	// Five seconds of 16 kHz audio cannot fit in this budget.
	_, err := s.Plan(60, 16000, 1, cfg)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Plan err = %v, want *ConfigError", err)
	}
}

func TestEffectiveDurationFloorWithinBudget(t *testing.T) {
	s := New(pcm16{})
	// 1 Hz mono: 2 bytes per second, so 54 bytes hold exactly 5 seconds.
	cfg := Config{TargetDurationSeconds: 120, MaxChunkBytes: 54}
	if got := s.MaxDurationForSize(1, 1, cfg.MaxChunkBytes); got != 3 {
		t.Fatalf("MaxDurationForSize = %v, want 3", got)
	}

	bounds, err := s.Plan(12, 1, 1, cfg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	wantEnds := []float64{5, 10, 12}
	if len(bounds) != len(wantEnds) {
		t.Fatalf("got %d segments, want %d", len(bounds), len(wantEnds))
	}
	for i, b := range bounds {
		if b.EndTime != wantEnds[i] {
			t.Errorf("segment %d ends at %v, want %v", i, b.EndTime, wantEnds[i])
		}
	}
}

func TestPlanZeroDuration(t *testing.T) {
	bounds, err := New(pcm16{}).Plan(0, 16000, 1, DefaultConfig())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(bounds) != 0 {
		t.Errorf("got %d segments, want 0", len(bounds))
	}
}

func TestPlanFinalSegmentIsShorter(t *testing.T) {
	bounds, err := New(pcm16{}).Plan(25, 16000, 1, Config{TargetDurationSeconds: 10, MaxChunkBytes: DefaultMaxChunkBytes})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(bounds) != 3 {
		t.Fatalf("got %d segments, want 3", len(bounds))
	}
	last := bounds[2]
	if last.StartTime != 20 || last.EndTime != 25 {
		t.Errorf("last segment = [%v, %v], want [20, 25]", last.StartTime, last.EndTime)
	}
}

func TestPlanConfigErrors(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		cfg        Config
		field      string
	}{
		{"zero target", 16000, 1, Config{TargetDurationSeconds: 0, MaxChunkBytes: DefaultMaxChunkBytes}, "chunk_duration_seconds"},
		{"negative overlap", 16000, 1, Config{TargetDurationSeconds: 60, OverlapSeconds: -1, MaxChunkBytes: DefaultMaxChunkBytes}, "overlap_seconds"},
		{"budget below header", 16000, 1, Config{TargetDurationSeconds: 60, MaxChunkBytes: 40}, "max_chunk_size"},
		{"zero sample rate", 0, 1, DefaultConfig(), "sample_rate"},
		{"zero channels", 16000, 0, DefaultConfig(), "channels"},
		{"overlap swallows cadence", 16000, 1, Config{TargetDurationSeconds: 10, OverlapSeconds: 10, MaxChunkBytes: DefaultMaxChunkBytes}, "overlap_seconds"},
		{"overlap past budget", 48000, 2, Config{TargetDurationSeconds: 600, OverlapSeconds: 30, MaxChunkBytes: DefaultMaxChunkBytes}, "overlap_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(pcm16{}).Plan(120, tt.sampleRate, tt.channels, tt.cfg)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestPlanProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	rates := []int{8000, 16000, 22050, 44100, 48000}
	s := New(pcm16{})

	checked := 0
	for i := 0; i < 500; i++ {
		sampleRate := rates[rng.IntN(len(rates))]
		channels := 1 + rng.IntN(2)
		cfg := Config{
			TargetDurationSeconds: 5 + rng.Float64()*900,
			OverlapSeconds:        rng.Float64() * 3,
			MaxChunkBytes:         1<<20 + rng.Int64N(30<<20),
		}
		duration := rng.Float64() * 3600

		bounds, err := s.Plan(duration, sampleRate, channels, cfg)
		if err != nil {
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("case %d: unexpected error %v", i, err)
			}
			continue
		}
		checked++

		if len(bounds) == 0 {
			t.Fatalf("case %d: no segments for %vs", i, duration)
		}
		maxEnd := 0.0
		for j, b := range bounds {
			if b.EstimatedBytes > cfg.MaxChunkBytes {
				t.Fatalf("case %d segment %d: %d bytes exceeds budget %d", i, j, b.EstimatedBytes, cfg.MaxChunkBytes)
			}
			if b.EndTime <= b.StartTime {
				t.Fatalf("case %d segment %d: empty range [%v, %v]", i, j, b.StartTime, b.EndTime)
			}
			if j > 0 && b.StartTime < bounds[j-1].StartTime {
				t.Fatalf("case %d segment %d: start %v before previous %v", i, j, b.StartTime, bounds[j-1].StartTime)
			}
			if b.Index != j {
				t.Fatalf("case %d: index %d at position %d", i, b.Index, j)
			}
			maxEnd = math.Max(maxEnd, b.EndTime)
		}
		if maxEnd != duration {
			t.Fatalf("case %d: max end %v, want %v", i, maxEnd, duration)
		}
	}
	if checked == 0 {
		t.Fatal("no randomized case produced a valid plan")
	}
}

func TestSplitCopiesSamples(t *testing.T) {
	const rate = 10
	src := make([]float32, 12*rate)
	for i := range src {
		src[i] = float32(i) / 1000
	}
	raw, err := audio.NewRawAudio(rate, [][]float32{src})
	if err != nil {
		t.Fatalf("NewRawAudio: %v", err)
	}

	segments, err := New(pcm16{}).Split(raw, Config{TargetDurationSeconds: 5, OverlapSeconds: 1, MaxChunkBytes: 1000})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}

	seg := segments[1]
	if seg.StartTime != 4 || seg.EndTime != 10 {
		t.Fatalf("segment 1 = [%v, %v], want [4, 10]", seg.StartTime, seg.EndTime)
	}
	if got := seg.Frames(); got != 60 {
		t.Fatalf("segment 1 frames = %d, want 60", got)
	}
	if seg.Samples[0][0] != src[40] {
		t.Errorf("first sample = %v, want %v", seg.Samples[0][0], src[40])
	}

	seg.Samples[0][0] = 99
	if src[40] == 99 {
		t.Error("segment shares memory with the source")
	}
}

func TestMaterializeZeroFillsPastEnd(t *testing.T) {
	raw, err := audio.NewRawAudio(10, [][]float32{{1, 1, 1, 1, 1}})
	if err != nil {
		t.Fatalf("NewRawAudio: %v", err)
	}
	seg := Materialize(raw, Bounds{Index: 0, StartTime: 0.3, EndTime: 0.8})
	want := []float32{1, 1, 0, 0, 0}
	if seg.Frames() != len(want) {
		t.Fatalf("frames = %d, want %d", seg.Frames(), len(want))
	}
	for i, v := range want {
		if seg.Samples[0][i] != v {
			t.Errorf("sample %d = %v, want %v", i, seg.Samples[0][i], v)
		}
	}
}

func TestSplitFoldsSubSampleTail(t *testing.T) {
	raw, err := audio.NewRawAudio(1000, [][]float32{make([]float32, 7301)})
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{TargetDurationSeconds: 7.3008, MaxChunkBytes: DefaultMaxChunkBytes}

	segments, err := New(pcm16{}).Split(raw, cfg)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want the tail folded into one", len(segments))
	}
	if seg := segments[0]; seg.EndTime != raw.DurationSeconds || seg.Frames() != 7301 {
		t.Errorf("segment = [%v, %v] with %d frames", seg.StartTime, seg.EndTime, seg.Frames())
	}

	// A tail of a few samples is still its own segment.
	raw, err = audio.NewRawAudio(1000, [][]float32{make([]float32, 7304)})
	if err != nil {
		t.Fatal(err)
	}
	segments, err = New(pcm16{}).Split(raw, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 || segments[1].Frames() != 3 {
		t.Errorf("segments = %d, last frames = %d", len(segments), segments[len(segments)-1].Frames())
	}
}

func TestPlanOverlapErrorSuggestsLimit(t *testing.T) {
	cfg := Config{TargetDurationSeconds: 600, OverlapSeconds: 8, MaxChunkBytes: DefaultMaxChunkBytes}
	_, err := New(pcm16{}).Plan(3600, 48000, 2, cfg)
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "overlap_seconds" {
		t.Fatalf("err = %v, want overlap_seconds ConfigError", err)
	}
	if !strings.Contains(err.Error(), "reduce overlap_seconds to 7.53 or less") {
		t.Errorf("error = %q", err.Error())
	}

	cfg.OverlapSeconds = 7.53
	if _, err := New(pcm16{}).Plan(3600, 48000, 2, cfg); err != nil {
		t.Errorf("suggested overlap rejected: %v", err)
	}
}
