// Package rpc serves the TranscriptionService over Connect using plain Go
// messages and a JSON codec.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/voicetyped/chunkscribe/internal/jobs"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/pkg/events"
)

const ServiceName = "chunkscribe.v1.TranscriptionService"

const (
	GetJobProcedure       = "/" + ServiceName + "/GetJob"
	CancelJobProcedure    = "/" + ServiceName + "/CancelJob"
	ListProfilesProcedure = "/" + ServiceName + "/ListProfiles"
	WatchJobProcedure     = "/" + ServiceName + "/WatchJob"
)

// JobService is the subset of jobs.Service the RPC surface needs.
type JobService interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Cancel(ctx context.Context, id string) (*jobs.Job, error)
	Profiles() []profiles.Profile
}

// EventSource hands out in-process event subscriptions.
type EventSource interface {
	Subscribe(jobID string, buffer int) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

// Server implements the TranscriptionService handlers.
type Server struct {
	jobs   JobService
	events EventSource
}

// NewServer creates the RPC server.
func NewServer(svc JobService, src EventSource) *Server {
	return &Server{jobs: svc, events: src}
}

// Handler returns the mount path and handler for the service.
func (s *Server) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetJobProcedure, connect.NewUnaryHandler(GetJobProcedure, s.GetJob, opts...))
	mux.Handle(CancelJobProcedure, connect.NewUnaryHandler(CancelJobProcedure, s.CancelJob, opts...))
	mux.Handle(ListProfilesProcedure, connect.NewUnaryHandler(ListProfilesProcedure, s.ListProfiles, opts...))
	mux.Handle(WatchJobProcedure, connect.NewServerStreamHandler(WatchJobProcedure, s.WatchJob, opts...))
	return "/" + ServiceName + "/", mux
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, jobs.ErrNotCancellable):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

var errJobIDRequired = errors.New("job_id is required")

func (s *Server) GetJob(ctx context.Context, req *connect.Request[GetJobRequest]) (*connect.Response[GetJobResponse], error) {
	if req.Msg.JobID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errJobIDRequired)
	}
	job, err := s.jobs.Get(ctx, req.Msg.JobID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetJobResponse{Job: toJob(job)}), nil
}

func (s *Server) CancelJob(ctx context.Context, req *connect.Request[CancelJobRequest]) (*connect.Response[CancelJobResponse], error) {
	if req.Msg.JobID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errJobIDRequired)
	}
	job, err := s.jobs.Cancel(ctx, req.Msg.JobID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CancelJobResponse{Job: toJob(job)}), nil
}

func (s *Server) ListProfiles(_ context.Context, _ *connect.Request[ListProfilesRequest]) (*connect.Response[ListProfilesResponse], error) {
	return connect.NewResponse(&ListProfilesResponse{Profiles: s.jobs.Profiles()}), nil
}

// WatchJob streams a snapshot of the job followed by its lifecycle events
// until the job reaches a terminal state or the client goes away.
func (s *Server) WatchJob(ctx context.Context, req *connect.Request[WatchJobRequest], stream *connect.ServerStream[JobEvent]) error {
	jobID := req.Msg.JobID
	if jobID == "" {
		return connect.NewError(connect.CodeInvalidArgument, errJobIDRequired)
	}

	// Subscribe before the snapshot so no transition is missed in between.
	sub := s.events.Subscribe(jobID, 256)
	defer s.events.Unsubscribe(sub)

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return toConnectError(err)
	}
	snapshot := &JobEvent{Type: SnapshotEvent, JobID: jobID, Timestamp: time.Now().UTC(), Job: toJob(job)}
	if err := stream.Send(snapshot); err != nil {
		return err
	}
	if snapshot.Terminal() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := stream.Send(fromEnvelope(env)); err != nil {
				return err
			}
			if env.Type.Terminal() {
				return nil
			}
		}
	}
}
