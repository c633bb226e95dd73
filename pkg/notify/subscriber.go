package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/voicetyped/chunkscribe/pkg/events"
)

// CallbackSource resolves the callback URL registered for a job. An empty
// URL means the job has none.
type CallbackSource interface {
	CallbackURL(ctx context.Context, jobID string) (string, error)
}

// Emitter publishes job events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, jobID string, data any) error
}

// Subscriber implements queue.SubscribeWorker to route terminal job events
// to their callback URL.
type Subscriber struct {
	Source   CallbackSource
	Notifier *Notifier
	Pool     workerpool.WorkerPool
	// Events, when set, receives a callback.failed event for every job
	// whose callback could not be delivered.
	Events Emitter
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("callback subscriber: unmarshal envelope")
		return err
	}
	if !env.Type.Terminal() {
		return nil
	}

	target, err := s.Source.CallbackURL(ctx, env.JobID)
	if err != nil {
		util.Log(ctx).WithError(err).Error("callback subscriber: lookup job")
		return err
	}
	if target == "" {
		return nil
	}

	deliver := func() {
		if err := s.Notifier.Deliver(ctx, target, env); err != nil {
			slog.WarnContext(ctx, "callback delivery failed",
				slog.String("job_id", env.JobID),
				slog.String("event_type", string(env.Type)),
				slog.String("error", err.Error()))
			if s.Events == nil {
				return
			}
			data := events.CallbackFailedData{URL: target, Error: err.Error()}
			if eerr := s.Events.Emit(ctx, events.CallbackFailed, env.JobID, data); eerr != nil {
				slog.ErrorContext(ctx, "publishing callback failure",
					slog.String("job_id", env.JobID),
					slog.String("error", eerr.Error()))
			}
		}
	}
	if s.Pool != nil {
		if err := s.Pool.Submit(ctx, deliver); err != nil {
			slog.WarnContext(ctx, "callback pool full", slog.String("job_id", env.JobID))
		}
		return nil
	}
	go deliver()
	return nil
}
