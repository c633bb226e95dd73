package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/frame/data"
	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voicetyped/chunkscribe/pkg/notify"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// DBProvider hands out gorm sessions. frame's datastore pool satisfies it.
type DBProvider interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// Repository persists jobs, their chunks and callback attempts.
type Repository struct {
	pool DBProvider
}

// NewRepository creates a new job repository.
func NewRepository(pool DBProvider) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// jobRef scopes a model update to one row by primary key.
func jobRef(id string) *Job {
	return &Job{BaseModel: data.BaseModel{ID: id}}
}

// Migrate creates or updates the job tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db(ctx, false).AutoMigrate(Models()...)
}

// Create persists a new job, assigning an ID when none is set.
func (r *Repository) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = xid.New().String()
	}
	return r.db(ctx, false).Create(job).Error
}

// Get returns a job by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := r.db(ctx, true).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the newest jobs first.
func (r *Repository) List(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	q := r.db(ctx, true).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// MarkRunning moves a queued job to running. It reports false when the job
// left the queued status in the meantime, e.g. because it was cancelled.
func (r *Repository) MarkRunning(ctx context.Context, id, backend string, authoritative bool) (bool, error) {
	res := r.db(ctx, false).Model(jobRef(id)).
		Where("status = ?", StatusQueued).
		Updates(map[string]any{
			"status":        StatusRunning,
			"backend":       backend,
			"authoritative": authoritative,
			"started_at":    sql.NullTime{Time: time.Now().UTC(), Valid: true},
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateProgress stores the orchestrator's state and chunk counters.
func (r *Repository) UpdateProgress(ctx context.Context, id, state string, completed, total int) error {
	return r.db(ctx, false).Model(jobRef(id)).
		Updates(map[string]any{
			"state":            state,
			"completed_chunks": completed,
			"total_chunks":     total,
		}).Error
}

// SaveChunk upserts the result for one chunk.
func (r *Repository) SaveChunk(ctx context.Context, jobID string, res transcript.SegmentResult) error {
	rec := &ChunkRecord{
		JobID:      jobID,
		ChunkIndex: res.ChunkIndex,
		StartTime:  res.StartTime,
		EndTime:    res.EndTime,
		Text:       res.Text,
		Error:      res.Error,
	}
	rec.ID = xid.New().String()
	return r.db(ctx, false).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "text", "error"}),
	}).Create(rec).Error
}

// Chunks returns a job's chunk results ordered by index.
func (r *Repository) Chunks(ctx context.Context, jobID string) ([]ChunkRecord, error) {
	var recs []ChunkRecord
	err := r.db(ctx, true).
		Where("job_id = ?", jobID).
		Order("chunk_index ASC").
		Find(&recs).Error
	return recs, err
}

// Finish stores the terminal status and, when present, the merged outcome.
func (r *Repository) Finish(ctx context.Context, id string, status Status, outcome *transcript.Outcome, errMsg string) error {
	fields := map[string]any{
		"status":      status,
		"state":       string(status),
		"error":       errMsg,
		"finished_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	if outcome != nil {
		fields["full_text"] = outcome.FullText
		fields["total_duration"] = outcome.TotalDuration
		fields["completed_chunks"] = len(outcome.Segments)
		fields["failed_chunks"] = len(outcome.Failed())
	}
	return r.db(ctx, false).Model(jobRef(id)).Updates(fields).Error
}

// CancelQueued marks a job cancelled if it has not started yet.
func (r *Repository) CancelQueued(ctx context.Context, id string) (bool, error) {
	res := r.db(ctx, false).Model(jobRef(id)).
		Where("status = ?", StatusQueued).
		Updates(map[string]any{
			"status":      StatusCancelled,
			"state":       string(StatusCancelled),
			"finished_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		})
	return res.RowsAffected == 1, res.Error
}

// Outcome rebuilds the merged transcript from stored chunks.
func (r *Repository) Outcome(ctx context.Context, job *Job) (*transcript.Outcome, error) {
	recs, err := r.Chunks(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	results := make([]transcript.SegmentResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, rec.Result())
	}
	outcome := transcript.Merge(results)
	return &outcome, nil
}

// CallbackURL implements notify.CallbackSource.
func (r *Repository) CallbackURL(ctx context.Context, jobID string) (string, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.CallbackURL, nil
}

// RecordCallback implements notify.Recorder.
func (r *Repository) RecordCallback(ctx context.Context, a notify.Attempt) error {
	rec := &CallbackAttempt{
		JobID:         a.JobID,
		EventID:       a.EventID,
		EventType:     a.EventType,
		URL:           a.URL,
		ResponseCode:  a.ResponseCode,
		AttemptNumber: a.Number,
		Status:        a.Status,
		Error:         a.Error,
		DurationMs:    a.Duration.Milliseconds(),
	}
	rec.ID = xid.New().String()
	return r.db(ctx, false).Create(rec).Error
}

// Callbacks returns callback attempts for a job, newest first.
func (r *Repository) Callbacks(ctx context.Context, jobID string) ([]CallbackAttempt, error) {
	var attempts []CallbackAttempt
	err := r.db(ctx, true).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, err
}
