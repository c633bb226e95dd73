package jobs

import (
	"database/sql"

	"github.com/pitabwire/frame/data"

	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// Status is the lifecycle position of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job will not change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one persisted transcription request.
type Job struct {
	data.BaseModel

	SourceName      string       `gorm:"type:varchar(512);not null"              json:"source_name"`
	MimeType        string       `gorm:"type:varchar(100)"                       json:"mime_type"`
	SizeBytes       int64        `gorm:"default:0"                               json:"size_bytes"`
	Profile         string       `gorm:"type:varchar(100)"                       json:"profile"`
	Backend         string       `gorm:"type:varchar(50)"                        json:"backend"`
	Authoritative   bool         `gorm:"default:true"                            json:"authoritative"`
	Status          Status       `gorm:"type:varchar(20);not null;index:idx_job_status" json:"status"`
	State           string       `gorm:"type:varchar(20)"                        json:"state"`
	TotalChunks     int          `gorm:"default:0"                               json:"total_chunks"`
	CompletedChunks int          `gorm:"default:0"                               json:"completed_chunks"`
	FailedChunks    int          `gorm:"default:0"                               json:"failed_chunks"`
	FullText        string       `gorm:"type:text"                               json:"full_text"`
	TotalDuration   float64      `gorm:"default:0"                               json:"total_duration"`
	Error           string       `gorm:"type:text"                               json:"error,omitempty"`
	CallbackURL     string       `gorm:"type:varchar(2048)"                      json:"callback_url,omitempty"`
	StartedAt       sql.NullTime `json:"started_at"`
	FinishedAt      sql.NullTime `json:"finished_at"`
}

func (Job) TableName() string { return "transcription_jobs" }

// ChunkRecord stores one chunk's result.
type ChunkRecord struct {
	data.BaseModel

	JobID      string  `gorm:"type:varchar(50);not null;uniqueIndex:idx_chunk_job_index" json:"job_id"`
	ChunkIndex int     `gorm:"not null;uniqueIndex:idx_chunk_job_index"                 json:"chunk_index"`
	StartTime  float64 `gorm:"not null"                                                 json:"start_time"`
	EndTime    float64 `gorm:"not null"                                                 json:"end_time"`
	Text       string  `gorm:"type:text"                                                json:"text"`
	Error      string  `gorm:"type:text"                                                json:"error,omitempty"`
}

func (ChunkRecord) TableName() string { return "transcription_chunks" }

// Result converts the record back to a segment result.
func (c ChunkRecord) Result() transcript.SegmentResult {
	return transcript.SegmentResult{
		ChunkIndex: c.ChunkIndex,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		Text:       c.Text,
		Error:      c.Error,
	}
}

// CallbackAttempt records one try at delivering a job event to its callback.
type CallbackAttempt struct {
	data.BaseModel

	JobID         string `gorm:"type:varchar(50);not null;index:idx_cb_job" json:"job_id"`
	EventID       string `gorm:"type:varchar(50);not null"                   json:"event_id"`
	EventType     string `gorm:"type:varchar(100);not null"                  json:"event_type"`
	URL           string `gorm:"type:varchar(2048)"                          json:"url"`
	ResponseCode  int    `gorm:"default:0"                                   json:"response_code"`
	AttemptNumber int    `gorm:"default:1"                                   json:"attempt_number"`
	Status        string `gorm:"type:varchar(20);not null"                   json:"status"`
	Error         string `gorm:"type:text"                                   json:"error,omitempty"`
	DurationMs    int64  `gorm:"default:0"                                   json:"duration_ms"`
}

func (CallbackAttempt) TableName() string { return "callback_attempts" }

// Models lists every persisted type for migration.
func Models() []any {
	return []any{&Job{}, &ChunkRecord{}, &CallbackAttempt{}}
}
