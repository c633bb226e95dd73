// Package orchestrator drives one transcription run: decode, segment, then
// encode and submit each segment in order, and merge the results.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/chunker"
	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// State is the phase a run is in.
type State string

const (
	StateDecoding   State = "decoding"
	StateSegmenting State = "segmenting"
	StateSubmitting State = "submitting"
	StateMerging    State = "merging"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Progress is pushed to the caller after every transition.
type Progress struct {
	State        State
	CurrentChunk int // chunks finished so far
	TotalChunks  int
	IsComplete   bool
	Chunks       []transcript.SegmentResult
}

// ProgressFunc receives progress updates. It is called synchronously from
// the run and must not block for long.
type ProgressFunc func(Progress)

// SleepFunc waits for d or until ctx is done, returning ctx's error in
// the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config tunes a run.
type Config struct {
	Chunking      chunker.Config
	MaxRetries    int
	RetryBackoff  time.Duration
	Pacing        time.Duration
	SubmitTimeout time.Duration

	// Sleep carries out pacing and retry waits. Nil waits on a timer.
	Sleep SleepFunc
}

// DefaultConfig returns two retries with a fixed 2s backoff, 500ms pacing
// between chunks and a 60s per-submission timeout.
func DefaultConfig() Config {
	return Config{
		Chunking:      chunker.DefaultConfig(),
		MaxRetries:    2,
		RetryBackoff:  2 * time.Second,
		Pacing:        500 * time.Millisecond,
		SubmitTimeout: 60 * time.Second,
	}
}

// Orchestrator runs a single transcription request.
type Orchestrator struct {
	decoder   *audio.Decoder
	segmenter *chunker.Segmenter
	encoder   *encoder.Encoder
	backend   transcribe.Backend
	cfg       Config
}

// New creates an orchestrator submitting to backend. A nil decoder decodes
// audio formats only, with no video extraction.
func New(backend transcribe.Backend, decoder *audio.Decoder, cfg Config) *Orchestrator {
	if decoder == nil {
		decoder = audio.NewDecoder(nil)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Orchestrator{
		decoder:   decoder,
		segmenter: chunker.New(encoder.WAV{}),
		encoder:   encoder.New(cfg.Chunking.MaxChunkBytes),
		backend:   transcribe.WithTimeout(backend, cfg.SubmitTimeout),
		cfg:       cfg,
	}
}

// Backend returns the backend this orchestrator submits to.
func (o *Orchestrator) Backend() transcribe.Backend { return o.backend }

// Run decodes blob and transcribes it. Decode and configuration errors
// abort with no outcome. Per-chunk failures are recorded in the outcome and
// never abort the run. When ctx is cancelled the outcome covers the chunks
// finished so far and the error wraps the cancellation cause.
func (o *Orchestrator) Run(ctx context.Context, blob []byte, mimeType string, progress ProgressFunc) (*transcript.Outcome, error) {
	emit := emitter(progress)
	emit(Progress{State: StateDecoding})

	raw, err := o.decoder.Decode(ctx, blob, mimeType)
	if err != nil {
		if ctx.Err() != nil {
			emit(Progress{State: StateCancelled, IsComplete: true})
			return nil, fmt.Errorf("transcription cancelled: %w", context.Cause(ctx))
		}
		emit(Progress{State: StateFailed, IsComplete: true})
		return nil, err
	}
	return o.run(ctx, raw, emit)
}

// RunDecoded transcribes already decoded audio.
func (o *Orchestrator) RunDecoded(ctx context.Context, raw *audio.RawAudio, progress ProgressFunc) (*transcript.Outcome, error) {
	return o.run(ctx, raw, emitter(progress))
}

func (o *Orchestrator) run(ctx context.Context, raw *audio.RawAudio, emit ProgressFunc) (*transcript.Outcome, error) {
	emit(Progress{State: StateSegmenting})

	if err := raw.Validate(); err != nil {
		emit(Progress{State: StateFailed, IsComplete: true})
		return nil, err
	}
	bounds, err := o.segmenter.Plan(raw.DurationSeconds, raw.SampleRate, raw.Channels, o.cfg.Chunking)
	if err != nil {
		emit(Progress{State: StateFailed, IsComplete: true})
		return nil, err
	}

	total := len(bounds)
	slog.InfoContext(ctx, "transcription planned",
		slog.Float64("duration_seconds", raw.DurationSeconds),
		slog.Int("sample_rate", raw.SampleRate),
		slog.Int("channels", raw.Channels),
		slog.Int("chunks", total),
		slog.String("backend", o.backend.Name()),
	)
	emit(Progress{State: StateSubmitting, TotalChunks: total})

	results := make([]transcript.SegmentResult, 0, total)
	for i, b := range bounds {
		if ctx.Err() != nil {
			return o.cancelled(ctx, results, total, emit)
		}

		res, err := o.process(ctx, raw, b)
		if err != nil && ctx.Err() != nil {
			return o.cancelled(ctx, results, total, emit)
		}
		results = append(results, res)
		emit(Progress{
			State:        StateSubmitting,
			CurrentChunk: len(results),
			TotalChunks:  total,
			Chunks:       slices.Clone(results),
		})

		if i < total-1 && o.cfg.Pacing > 0 {
			if err := o.cfg.Sleep(ctx, o.cfg.Pacing); err != nil {
				return o.cancelled(ctx, results, total, emit)
			}
		}
	}

	emit(Progress{State: StateMerging, CurrentChunk: total, TotalChunks: total, Chunks: slices.Clone(results)})
	outcome := transcript.Merge(results)

	if outcome.Error != "" {
		slog.WarnContext(ctx, "transcription finished with failed chunks",
			slog.Int("failed", len(outcome.Failed())),
			slog.Int("chunks", total),
		)
	}
	emit(Progress{
		State:        StateDone,
		CurrentChunk: total,
		TotalChunks:  total,
		IsComplete:   true,
		Chunks:       slices.Clone(outcome.Segments),
	})
	return &outcome, nil
}

// process materializes, encodes and submits one segment. The returned
// result carries the last error when every attempt failed; err is only
// non-nil alongside a failed result.
func (o *Orchestrator) process(ctx context.Context, raw *audio.RawAudio, b chunker.Bounds) (transcript.SegmentResult, error) {
	result := transcript.SegmentResult{ChunkIndex: b.Index, StartTime: b.StartTime, EndTime: b.EndTime}

	seg, err := o.encoder.Encode(ctx, chunker.Materialize(raw, b))
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	res, err := o.submit(ctx, seg)
	if err != nil {
		result.Error = err.Error()
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "chunk transcription failed",
				slog.Int("chunk_index", b.Index),
				slog.String("kind", string(transcribe.KindOf(err))),
				slog.String("error", err.Error()),
			)
		}
		return result, err
	}

	result.Text = res.Text
	slog.DebugContext(ctx, "chunk transcribed",
		slog.Int("chunk_index", b.Index),
		slog.Int64("bytes", seg.Size()),
		slog.Int("chars", len(res.Text)),
	)
	return result, nil
}

// submit sends seg with up to MaxRetries retries. Every wait between
// attempts is the same RetryBackoff; failures that cannot recover on their
// own stop retrying immediately.
func (o *Orchestrator) submit(ctx context.Context, seg encoder.EncodedSegment) (transcribe.Result, error) {
	policy := backoff.NewConstantBackOff(o.cfg.RetryBackoff)
	maxTries := o.cfg.MaxRetries + 1

	for attempt := 1; ; attempt++ {
		res, err := o.backend.Transcribe(ctx, seg)
		if err == nil {
			return res, nil
		}
		if attempt >= maxTries || !transcribe.Retryable(err) || ctx.Err() != nil {
			return transcribe.Result{}, err
		}

		next := policy.NextBackOff()
		slog.WarnContext(ctx, "retrying chunk",
			slog.Int("chunk_index", seg.Index),
			slog.Int("attempt", attempt),
			slog.String("kind", string(transcribe.KindOf(err))),
			slog.Duration("backoff", next),
			slog.String("error", err.Error()),
		)
		if next > 0 {
			if serr := o.cfg.Sleep(ctx, next); serr != nil {
				return transcribe.Result{}, err
			}
		}
	}
}

func (o *Orchestrator) cancelled(ctx context.Context, results []transcript.SegmentResult, total int, emit ProgressFunc) (*transcript.Outcome, error) {
	outcome := transcript.Merge(results)
	slog.InfoContext(ctx, "transcription cancelled",
		slog.Int("completed", len(results)),
		slog.Int("chunks", total),
	)
	emit(Progress{
		State:        StateCancelled,
		CurrentChunk: len(results),
		TotalChunks:  total,
		IsComplete:   true,
		Chunks:       slices.Clone(outcome.Segments),
	})
	return &outcome, fmt.Errorf("transcription cancelled: %w", context.Cause(ctx))
}

func emitter(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(Progress) {}
	}
	return fn
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
