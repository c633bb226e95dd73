package handler

import (
	"time"

	"github.com/voicetyped/chunkscribe/internal/jobs"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// JobResponse is the API representation of a transcription job.
type JobResponse struct {
	ID              string  `json:"id"`
	SourceName      string  `json:"source_name"`
	MimeType        string  `json:"mime_type"`
	SizeBytes       int64   `json:"size_bytes"`
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
	CreatedAt       string  `json:"created_at"`
	StartedAt       string  `json:"started_at,omitempty"`
	FinishedAt      string  `json:"finished_at,omitempty"`
}

// ChunkResponse is one chunk's stored result.
type ChunkResponse struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Error     string  `json:"error,omitempty"`
}

// CallbackResponse is one recorded callback delivery attempt.
type CallbackResponse struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	ResponseCode  int    `json:"response_code"`
	AttemptNumber int    `json:"attempt_number"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	CreatedAt     string `json:"created_at"`
}

// ProfileResponse describes a chunking profile.
type ProfileResponse struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	Backend              string   `json:"backend,omitempty"`
	Model                string   `json:"model,omitempty"`
	Language             string   `json:"language,omitempty"`
	ChunkDurationSeconds float64  `json:"chunk_duration_seconds,omitempty"`
	OverlapSeconds       *float64 `json:"overlap_seconds,omitempty"`
	MaxChunkSize         int64    `json:"max_chunk_size,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toJobResponse(j *jobs.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		SourceName:      j.SourceName,
		MimeType:        j.MimeType,
		SizeBytes:       j.SizeBytes,
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
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt.Valid {
		resp.StartedAt = j.StartedAt.Time.Format(time.RFC3339)
	}
	if j.FinishedAt.Valid {
		resp.FinishedAt = j.FinishedAt.Time.Format(time.RFC3339)
	}
	return resp
}

func toChunkResponse(r transcript.SegmentResult) ChunkResponse {
	return ChunkResponse{
		Index:     r.ChunkIndex,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Text:      r.Text,
		Error:     r.Error,
	}
}

func toCallbackResponse(a jobs.CallbackAttempt) CallbackResponse {
	return CallbackResponse{
		EventID:       a.EventID,
		EventType:     a.EventType,
		ResponseCode:  a.ResponseCode,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status,
		Error:         a.Error,
		DurationMs:    a.DurationMs,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

func toProfileResponse(p profiles.Profile) ProfileResponse {
	return ProfileResponse{
		Name:                 p.Name,
		Description:          p.Description,
		Backend:              p.Backend,
		Model:                p.Model,
		Language:             p.Language,
		ChunkDurationSeconds: p.ChunkDurationSeconds,
		OverlapSeconds:       p.OverlapSeconds,
		MaxChunkSize:         p.MaxChunkSize,
	}
}
