package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	JobQueued      EventType = "transcription.queued"
	JobStarted     EventType = "transcription.started"
	JobProgress    EventType = "transcription.progress"
	ChunkFailed    EventType = "transcription.chunk_failed"
	JobCompleted   EventType = "transcription.completed"
	JobFailed      EventType = "transcription.failed"
	JobCancelled   EventType = "transcription.cancelled"
	CallbackFailed EventType = "callback.failed"
)

// Terminal reports whether the event closes a job's lifecycle.
func (t EventType) Terminal() bool {
	return t == JobCompleted || t == JobFailed || t == JobCancelled
}

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	JobID     string            `json:"job_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// QueuedData is the payload for transcription.queued events.
type QueuedData struct {
	SourceName string `json:"source_name"`
	MimeType   string `json:"mime_type"`
	Profile    string `json:"profile"`
	SizeBytes  int64  `json:"size_bytes"`
}

// StartedData is the payload for transcription.started events.
type StartedData struct {
	Backend       string `json:"backend"`
	Authoritative bool   `json:"authoritative"`
}

// ProgressData is the payload for transcription.progress events.
type ProgressData struct {
	State        string `json:"state"`
	CurrentChunk int    `json:"current_chunk"`
	TotalChunks  int    `json:"total_chunks"`
	IsComplete   bool   `json:"is_complete"`
}

// ChunkFailedData is the payload for transcription.chunk_failed events.
type ChunkFailedData struct {
	ChunkIndex int     `json:"chunk_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Error      string  `json:"error"`
}

// CompletedData is the payload for transcription.completed events.
type CompletedData struct {
	TotalDuration float64 `json:"total_duration"`
	Chunks        int     `json:"chunks"`
	FailedChunks  int     `json:"failed_chunks"`
	Error         string  `json:"error,omitempty"`
}

// FailedData is the payload for transcription.failed events.
type FailedData struct {
	Error string `json:"error"`
}

// CancelledData is the payload for transcription.cancelled events.
type CancelledData struct {
	CompletedChunks int `json:"completed_chunks"`
	TotalChunks     int `json:"total_chunks"`
}

// CallbackFailedData is the payload for callback.failed events.
type CallbackFailedData struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}
