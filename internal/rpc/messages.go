package rpc

import (
	"encoding/json"
	"time"

	"github.com/voicetyped/chunkscribe/internal/jobs"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/pkg/events"
)

// Job is the RPC view of a transcription job.
type Job struct {
	ID              string  `json:"id"`
	SourceName      string  `json:"source_name"`
	Profile         string  `json:"profile"`
	Backend         string  `json:"backend,omitempty"`
	Authoritative   bool    `json:"authoritative"`
	Status          string  `json:"status"`
	State           string  `json:"state"`
	TotalChunks     int     `json:"total_chunks"`
	CompletedChunks int     `json:"completed_chunks"`
	FailedChunks    int     `json:"failed_chunks"`
	FullText        string  `json:"full_text,omitempty"`
	TotalDuration   float64 `json:"total_duration"`
	Error           string  `json:"error,omitempty"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool { return jobs.Status(j.Status).Terminal() }

type GetJobRequest struct {
	JobID string `json:"job_id"`
}

func (r *GetJobRequest) GetJobID() string { return r.JobID }

type GetJobResponse struct {
	Job *Job `json:"job"`
}

type CancelJobRequest struct {
	JobID string `json:"job_id"`
}

func (r *CancelJobRequest) GetJobID() string { return r.JobID }

type CancelJobResponse struct {
	Job *Job `json:"job"`
}

type ListProfilesRequest struct{}

type ListProfilesResponse struct {
	Profiles []profiles.Profile `json:"profiles"`
}

type WatchJobRequest struct {
	JobID string `json:"job_id"`
}

func (r *WatchJobRequest) GetJobID() string { return r.JobID }

// JobEvent is one message on the WatchJob stream. The first message is a
// snapshot of the job; the rest mirror lifecycle events.
type JobEvent struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Timestamp time.Time       `json:"timestamp"`
	Job       *Job            `json:"job,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SnapshotEvent marks the initial message of a WatchJob stream.
const SnapshotEvent = "snapshot"

// Terminal reports whether no further events follow for the job.
func (e *JobEvent) Terminal() bool {
	if e.Type == SnapshotEvent {
		return e.Job != nil && e.Job.Terminal()
	}
	return events.EventType(e.Type).Terminal()
}

// Progress decodes the payload of a transcription.progress event.
func (e *JobEvent) Progress() (events.ProgressData, bool) {
	var p events.ProgressData
	if e.Type != string(events.JobProgress) || json.Unmarshal(e.Data, &p) != nil {
		return p, false
	}
	return p, true
}

func toJob(j *jobs.Job) *Job {
	return &Job{
		ID:              j.ID,
		SourceName:      j.SourceName,
		Profile:         j.Profile,
		Backend:         j.Backend,
		Authoritative:   j.Authoritative,
		Status:          string(j.Status),
		State:           j.State,
		TotalChunks:     j.TotalChunks,
		CompletedChunks: j.CompletedChunks,
		FailedChunks:    j.FailedChunks,
		FullText:        j.FullText,
		TotalDuration:   j.TotalDuration,
		Error:           j.Error,
	}
}

func fromEnvelope(env events.Envelope) *JobEvent {
	return &JobEvent{
		Type:      string(env.Type),
		JobID:     env.JobID,
		Timestamp: env.Timestamp,
		Data:      env.Data,
	}
}
