// Package jobs persists transcription requests and runs them in the
// background on a worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pitabwire/util"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/orchestrator"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
	"github.com/voicetyped/chunkscribe/pkg/events"
	"github.com/voicetyped/chunkscribe/pkg/export"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
	"github.com/voicetyped/chunkscribe/pkg/urlvalidation"
)

var (
	// ErrUnknownProfile is returned when a request names a missing profile.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrNotCancellable is returned when cancelling a finished job.
	ErrNotCancellable = errors.New("job already finished")
	// ErrNotReady is returned when exporting a job with no transcript.
	ErrNotReady = errors.New("job has no transcript to export")
	// ErrEmptyUpload is returned for an upload without content.
	ErrEmptyUpload = errors.New("upload is empty")
	// ErrInvalidCallback is returned when the callback URL is rejected.
	ErrInvalidCallback = errors.New("invalid callback URL")
)

// Pool runs background work. frame's workerpool.WorkerPool satisfies it.
type Pool interface {
	Submit(ctx context.Context, task func()) error
}

// BackendFactory builds the transcription backend for a profile.
type BackendFactory func(p profiles.Profile) (transcribe.Backend, error)

// SubmitRequest describes an uploaded file to transcribe.
type SubmitRequest struct {
	SourceName  string
	MimeType    string
	Data        []byte
	Profile     string
	CallbackURL string
}

// Options wires a Service.
type Options struct {
	Repo         *Repository
	Pool         Pool
	Publisher    *events.Publisher
	Profiles     *profiles.Loader
	Backends     BackendFactory
	Decoder      *audio.Decoder
	Orchestrator orchestrator.Config
	// CallbackValidation is applied to callback URLs at submission.
	CallbackValidation []urlvalidation.Option
}

// Service accepts, runs, cancels and exports transcription jobs.
type Service struct {
	opts Options

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a job service.
func NewService(opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = events.NewPublisher(nil, "chunkscribe", "")
	}
	if opts.Decoder == nil {
		opts.Decoder = audio.NewDecoder(nil)
	}
	return &Service{opts: opts, running: make(map[string]context.CancelFunc)}
}

// Publisher returns the event publisher jobs report to.
func (s *Service) Publisher() *events.Publisher { return s.opts.Publisher }

// Profiles lists the available chunking profiles.
func (s *Service) Profiles() []profiles.Profile { return s.opts.Profiles.List() }

// Submit persists a queued job and schedules it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyUpload
	}
	profile, ok := s.opts.Profiles.Get(req.Profile)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProfile, req.Profile)
	}
	if req.CallbackURL != "" {
		if err := urlvalidation.ValidateCallbackURL(ctx, req.CallbackURL, s.opts.CallbackValidation...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
		}
	}

	mimeType := audio.Sniff(req.Data, req.MimeType)
	job := &Job{
		SourceName:  req.SourceName,
		MimeType:    mimeType,
		SizeBytes:   int64(len(req.Data)),
		Profile:     profile.Name,
		Status:      StatusQueued,
		State:       string(StatusQueued),
		CallbackURL: req.CallbackURL,
	}
	if err := s.opts.Repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.emit(ctx, events.JobQueued, job.ID, events.QueuedData{
		SourceName: job.SourceName,
		MimeType:   job.MimeType,
		Profile:    job.Profile,
		SizeBytes:  job.SizeBytes,
	})

	// The run outlives the submitting request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.running[job.ID] = cancel
	s.mu.Unlock()

	jobID, blob := job.ID, req.Data
	if err := s.opts.Pool.Submit(runCtx, func() { s.run(runCtx, jobID, mimeType, blob, profile) }); err != nil {
		s.forget(job.ID)
		s.fail(context.WithoutCancel(ctx), job.ID, fmt.Errorf("scheduling failed: %w", err))
		return nil, fmt.Errorf("schedule job: %w", err)
	}
	return job, nil
}

func (s *Service) run(ctx context.Context, jobID, mimeType string, blob []byte, profile profiles.Profile) {
	defer s.forget(jobID)
	log := slog.With(slog.String("job_id", jobID))
	if ctx.Err() != nil {
		return
	}

	backend, err := s.opts.Backends(profile)
	if err != nil {
		s.fail(ctx, jobID, fmt.Errorf("select backend: %w", err))
		return
	}

	started, err := s.opts.Repo.MarkRunning(ctx, jobID, backend.Name(), backend.Authoritative())
	if err != nil {
		log.ErrorContext(ctx, "mark job running failed", slog.String("error", err.Error()))
		return
	}
	if !started {
		log.InfoContext(ctx, "job left the queue before starting")
		return
	}
	s.emit(ctx, events.JobStarted, jobID, events.StartedData{Backend: backend.Name(), Authoritative: backend.Authoritative()})

	cfg := s.opts.Orchestrator
	cfg.Chunking = profile.Chunking(cfg.Chunking)
	orch := orchestrator.New(backend, s.opts.Decoder, cfg)

	outcome, err := orch.Run(ctx, blob, mimeType, func(p orchestrator.Progress) {
		s.onProgress(ctx, jobID, p)
	})

	// Persisting the final state must not be cut short by cancellation.
	finishCtx := context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		if ferr := s.opts.Repo.Finish(finishCtx, jobID, StatusCancelled, outcome, ""); ferr != nil {
			log.ErrorContext(ctx, "persist cancelled job failed", slog.String("error", ferr.Error()))
		}
		done := 0
		if outcome != nil {
			done = len(outcome.Segments)
		}
		s.emit(finishCtx, events.JobCancelled, jobID, events.CancelledData{CompletedChunks: done})
	case err != nil:
		s.fail(finishCtx, jobID, err)
	default:
		if ferr := s.opts.Repo.Finish(finishCtx, jobID, StatusCompleted, outcome, outcome.Error); ferr != nil {
			log.ErrorContext(ctx, "persist completed job failed", slog.String("error", ferr.Error()))
		}
		s.emit(finishCtx, events.JobCompleted, jobID, events.CompletedData{
			TotalDuration: outcome.TotalDuration,
			Chunks:        len(outcome.Segments),
			FailedChunks:  len(outcome.Failed()),
			Error:         outcome.Error,
		})
	}
}

func (s *Service) onProgress(ctx context.Context, jobID string, p orchestrator.Progress) {
	if p.State == orchestrator.StateSubmitting && p.CurrentChunk > 0 && len(p.Chunks) > 0 {
		last := p.Chunks[len(p.Chunks)-1]
		if err := s.opts.Repo.SaveChunk(context.WithoutCancel(ctx), jobID, last); err != nil {
			slog.ErrorContext(ctx, "save chunk failed",
				slog.String("job_id", jobID),
				slog.Int("chunk_index", last.ChunkIndex),
				slog.String("error", err.Error()))
		}
		if last.Failed() {
			s.emit(ctx, events.ChunkFailed, jobID, events.ChunkFailedData{
				ChunkIndex: last.ChunkIndex,
				StartTime:  last.StartTime,
				EndTime:    last.EndTime,
				Error:      last.Error,
			})
		}
	}
	if p.State.Terminal() {
		return
	}
	if err := s.opts.Repo.UpdateProgress(context.WithoutCancel(ctx), jobID, string(p.State), p.CurrentChunk, p.TotalChunks); err != nil {
		slog.ErrorContext(ctx, "update progress failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
	s.emit(ctx, events.JobProgress, jobID, events.ProgressData{
		State:        string(p.State),
		CurrentChunk: p.CurrentChunk,
		TotalChunks:  p.TotalChunks,
		IsComplete:   p.IsComplete,
	})
}

func (s *Service) fail(ctx context.Context, jobID string, err error) {
	util.Log(ctx).WithError(err).Error("transcription job " + jobID + " failed")
	if ferr := s.opts.Repo.Finish(ctx, jobID, StatusFailed, nil, err.Error()); ferr != nil {
		slog.ErrorContext(ctx, "persisting failed job",
			slog.String("job_id", jobID),
			slog.String("cause", err.Error()),
			slog.String("error", ferr.Error()))
	}
	s.emit(ctx, events.JobFailed, jobID, events.FailedData{Error: err.Error()})
}

func (s *Service) emit(ctx context.Context, t events.EventType, jobID string, payload any) {
	if err := s.opts.Publisher.Emit(ctx, t, jobID, payload); err != nil {
		slog.WarnContext(ctx, "publish event failed",
			slog.String("event_type", string(t)),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) forget(jobID string) {
	s.mu.Lock()
	if cancel, ok := s.running[jobID]; ok {
		cancel()
		delete(s.running, jobID)
	}
	s.mu.Unlock()
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.opts.Repo.Get(ctx, id)
}

// Chunks returns the stored per-chunk results of a job.
func (s *Service) Chunks(ctx context.Context, id string) ([]transcript.SegmentResult, error) {
	if _, err := s.opts.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	recs, err := s.opts.Repo.Chunks(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]transcript.SegmentResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Result())
	}
	return out, nil
}

// Cancel stops a queued or running job.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := s.opts.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, ErrNotCancellable
	}

	if job.Status == StatusQueued {
		ok, err := s.opts.Repo.CancelQueued(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			s.forget(id)
			s.emit(ctx, events.JobCancelled, id, events.CancelledData{})
			return s.opts.Repo.Get(ctx, id)
		}
	}

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return s.opts.Repo.Get(ctx, id)
}

// Export renders a job's transcript. Completed and cancelled jobs can be
// exported; a cancelled job yields its partial transcript.
func (s *Service) Export(ctx context.Context, id string, f export.Format) ([]byte, string, error) {
	job, err := s.opts.Repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != StatusCompleted && job.Status != StatusCancelled {
		return nil, "", ErrNotReady
	}
	outcome, err := s.opts.Repo.Outcome(ctx, job)
	if err != nil {
		return nil, "", err
	}
	return export.New().Render(outcome, job.SourceName, f)
}

// Callbacks returns the callback delivery attempts recorded for a job.
func (s *Service) Callbacks(ctx context.Context, id string) ([]CallbackAttempt, error) {
	if _, err := s.opts.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.opts.Repo.Callbacks(ctx, id)
}
