package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/voicetyped/chunkscribe/internal/connectutil"
	"github.com/voicetyped/chunkscribe/internal/profiles"
)

// Client calls a remote TranscriptionService.
type Client struct {
	getJob       *connect.Client[GetJobRequest, GetJobResponse]
	cancelJob    *connect.Client[CancelJobRequest, CancelJobResponse]
	listProfiles *connect.Client[ListProfilesRequest, ListProfilesResponse]
	watchJob     *connect.Client[WatchJobRequest, JobEvent]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(connectutil.DefaultClientOptions(), opts...)
	return &Client{
		getJob:       connect.NewClient[GetJobRequest, GetJobResponse](httpClient, baseURL+GetJobProcedure, opts...),
		cancelJob:    connect.NewClient[CancelJobRequest, CancelJobResponse](httpClient, baseURL+CancelJobProcedure, opts...),
		listProfiles: connect.NewClient[ListProfilesRequest, ListProfilesResponse](httpClient, baseURL+ListProfilesProcedure, opts...),
		watchJob:     connect.NewClient[WatchJobRequest, JobEvent](httpClient, baseURL+WatchJobProcedure, opts...),
	}
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	resp, err := c.getJob.CallUnary(ctx, connect.NewRequest(&GetJobRequest{JobID: jobID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Job, nil
}

func (c *Client) CancelJob(ctx context.Context, jobID string) (*Job, error) {
	resp, err := c.cancelJob.CallUnary(ctx, connect.NewRequest(&CancelJobRequest{JobID: jobID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Job, nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]profiles.Profile, error) {
	resp, err := c.listProfiles.CallUnary(ctx, connect.NewRequest(&ListProfilesRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Profiles, nil
}

// WatchJob calls fn for every event on the job's stream until the stream
// ends, fn returns an error, or ctx is done.
func (c *Client) WatchJob(ctx context.Context, jobID string, fn func(*JobEvent) error) error {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.watchJob.CallServerStream(ctx, connect.NewRequest(&WatchJobRequest{JobID: jobID}))
	if err != nil {
		cancel()
		return err
	}
	defer stream.Close()
	// Cancel first so Close does not wait for the server to end the stream.
	defer cancel()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
