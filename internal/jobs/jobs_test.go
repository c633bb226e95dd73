package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/chunker"
	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/orchestrator"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
	"github.com/voicetyped/chunkscribe/internal/transcribe/backends/placeholder"
	"github.com/voicetyped/chunkscribe/pkg/events"
	"github.com/voicetyped/chunkscribe/pkg/export"
	"github.com/voicetyped/chunkscribe/pkg/notify"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

type testDB struct{ db *gorm.DB }

func (p testDB) DB(ctx context.Context, _ bool) *gorm.DB { return p.db.WithContext(ctx) }

// newTestRepo opens a private in-memory SQLite database. The driver needs
// cgo, so the test is skipped where it cannot be opened.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(testDB{db: db})
	if err := repo.Migrate(t.Context()); err != nil {
		t.Skipf("sqlite migration unavailable: %v", err)
	}
	return repo
}

type inlinePool struct{}

func (inlinePool) Submit(_ context.Context, task func()) error {
	task()
	return nil
}

type goPool struct{ wg sync.WaitGroup }

func (p *goPool) Submit(_ context.Context, task func()) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task()
	}()
	return nil
}

// blockingBackend waits for cancellation on its first call.
type blockingBackend struct {
	once    sync.Once
	started chan struct{}
}

func (b *blockingBackend) Name() string        { return "blocking" }
func (b *blockingBackend) Authoritative() bool { return true }

func (b *blockingBackend) Transcribe(ctx context.Context, _ encoder.EncodedSegment) (transcribe.Result, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return transcribe.Result{}, ctx.Err()
}

// wavSeconds encodes mono 1 kHz audio of the given length.
func wavSeconds(t *testing.T, seconds int) []byte {
	t.Helper()
	samples := make([]float32, seconds*1000)
	for i := range samples {
		samples[i] = float32(i%50) / 100
	}
	raw, err := audio.NewRawAudio(1000, [][]float32{samples})
	if err != nil {
		t.Fatal(err)
	}
	seg, err := encoder.New(0).Encode(t.Context(), chunker.Materialize(raw, chunker.Bounds{EndTime: float64(seconds)}))
	if err != nil {
		t.Fatal(err)
	}
	return seg.Data
}

func newTestService(t *testing.T, repo *Repository, pool Pool, backend transcribe.Backend) (*Service, <-chan events.Envelope) {
	t.Helper()
	pub := events.NewPublisher(nil, "test", "")
	sub := pub.Subscribe("", 256)
	t.Cleanup(func() { pub.Unsubscribe(sub) })

	cfg := orchestrator.DefaultConfig()
	cfg.Chunking.TargetDurationSeconds = 10
	cfg.Pacing = 0
	cfg.RetryBackoff = time.Millisecond

	svc := NewService(Options{
		Repo:         repo,
		Pool:         pool,
		Publisher:    pub,
		Profiles:     profiles.NewLoader(t.TempDir()),
		Backends:     func(profiles.Profile) (transcribe.Backend, error) { return backend, nil },
		Orchestrator: cfg,
	})
	return svc, sub.C
}

func drain(ch <-chan events.Envelope) []events.EventType {
	var out []events.EventType
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, env.Type)
		default:
			return out
		}
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := t.Context()

	job := &Job{SourceName: "talk.wav", Status: StatusQueued, State: string(StatusQueued)}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}

	ok, err := repo.MarkRunning(ctx, job.ID, "placeholder", false)
	if err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}
	ok, err = repo.MarkRunning(ctx, job.ID, "placeholder", false)
	if err != nil || ok {
		t.Fatalf("second MarkRunning = %v, %v, want false", ok, err)
	}

	results := []transcript.SegmentResult{
		{ChunkIndex: 1, StartTime: 10, EndTime: 20, Error: "boom"},
		{ChunkIndex: 0, StartTime: 0, EndTime: 10, Text: "hello"},
	}
	for _, r := range results {
		if err := repo.SaveChunk(ctx, job.ID, r); err != nil {
			t.Fatal(err)
		}
	}
	// Saving the same index again replaces the row.
	if err := repo.SaveChunk(ctx, job.ID, transcript.SegmentResult{ChunkIndex: 1, StartTime: 10, EndTime: 20, Text: "world"}); err != nil {
		t.Fatal(err)
	}

	recs, err := repo.Chunks(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ChunkIndex != 0 || recs[1].Text != "world" || recs[1].Error != "" {
		t.Fatalf("chunks = %+v", recs)
	}

	outcome, err := repo.Outcome(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.FullText != "hello world" || outcome.TotalDuration != 20 {
		t.Errorf("outcome = %+v", outcome)
	}

	if err := repo.Finish(ctx, job.ID, StatusCompleted, outcome, ""); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.FullText != "hello world" || got.CompletedChunks != 2 || !got.FinishedAt.Valid {
		t.Errorf("job = %+v", got)
	}
	if got.Backend != "placeholder" || got.Authoritative {
		t.Errorf("backend = %q authoritative = %v", got.Backend, got.Authoritative)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestRepositoryCallbacks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := t.Context()

	job := &Job{SourceName: "a.mp3", Status: StatusQueued, CallbackURL: "https://hooks.example.com/done"}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	url, err := repo.CallbackURL(ctx, job.ID)
	if err != nil || url != job.CallbackURL {
		t.Fatalf("CallbackURL = %q, %v", url, err)
	}

	err = repo.RecordCallback(ctx, notify.Attempt{
		JobID: job.ID, EventID: "ev1", EventType: string(events.JobCompleted),
		URL: url, Number: 1, ResponseCode: 200, Status: "delivered", Duration: 15 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	attempts, err := repo.Callbacks(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].ResponseCode != 200 || attempts[0].DurationMs != 15 {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestServiceRunsJobToCompletion(t *testing.T) {
	repo := newTestRepo(t)
	svc, ch := newTestService(t, repo, inlinePool{}, placeholder.New())
	ctx := t.Context()

	job, err := svc.Submit(ctx, SubmitRequest{SourceName: "memo.wav", MimeType: "audio/wav", Data: wavSeconds(t, 12)})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s (error %q)", got.Status, got.Error)
	}
	if got.TotalChunks != 2 || got.CompletedChunks != 2 || got.Authoritative {
		t.Errorf("job = %+v", got)
	}
	if got.Profile != profiles.DefaultName {
		t.Errorf("profile = %q", got.Profile)
	}
	want := placeholder.Text(0, 0, 10) + " " + placeholder.Text(1, 10, 12)
	if got.FullText != want {
		t.Errorf("full text = %q, want %q", got.FullText, want)
	}

	chunks, err := svc.Chunks(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || chunks[1].EndTime != 12 {
		t.Errorf("chunks = %+v", chunks)
	}

	body, name, err := svc.Export(ctx, job.ID, export.SRT)
	if err != nil {
		t.Fatal(err)
	}
	if name != "memo.srt" || !strings.HasPrefix(string(body), "1\n00:00:00,000 --> 00:00:10,000\n") {
		t.Errorf("export %q:\n%s", name, body)
	}

	types := drain(ch)
	if len(types) < 3 || types[0] != events.JobQueued || types[1] != events.JobStarted || types[len(types)-1] != events.JobCompleted {
		t.Errorf("events = %v", types)
	}

	if _, err := svc.Cancel(ctx, job.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("Cancel on completed job err = %v", err)
	}
}

func TestServiceRejectsBadRequests(t *testing.T) {
	repo := newTestRepo(t)
	svc, _ := newTestService(t, repo, inlinePool{}, placeholder.New())
	ctx := t.Context()

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"empty", SubmitRequest{SourceName: "a.wav"}, ErrEmptyUpload},
		{"profile", SubmitRequest{SourceName: "a.wav", Data: []byte("x"), Profile: "nope"}, ErrUnknownProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := svc.Submit(ctx, SubmitRequest{SourceName: "a.wav", Data: []byte("x"), CallbackURL: "http://127.0.0.1/hook"})
	if !errors.Is(err, ErrInvalidCallback) {
		t.Errorf("private callback err = %v", err)
	}
}

func TestServiceFailsUndecodableUpload(t *testing.T) {
	repo := newTestRepo(t)
	svc, ch := newTestService(t, repo, inlinePool{}, placeholder.New())
	ctx := t.Context()

	job, err := svc.Submit(ctx, SubmitRequest{SourceName: "junk.wav", MimeType: "audio/wav", Data: []byte("not a wav file")})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("job = %+v", got)
	}
	if _, _, err := svc.Export(ctx, job.ID, export.TXT); !errors.Is(err, ErrNotReady) {
		t.Errorf("Export err = %v, want ErrNotReady", err)
	}
	types := drain(ch)
	if types[len(types)-1] != events.JobFailed {
		t.Errorf("events = %v", types)
	}
}

func TestServiceCancelRunningJob(t *testing.T) {
	repo := newTestRepo(t)
	backend := &blockingBackend{started: make(chan struct{})}
	pool := &goPool{}
	svc, _ := newTestService(t, repo, pool, backend)
	ctx := t.Context()

	job, err := svc.Submit(ctx, SubmitRequest{SourceName: "long.wav", MimeType: "audio/wav", Data: wavSeconds(t, 30)})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("backend never called")
	}
	if _, err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	pool.wg.Wait()

	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s (error %q)", got.Status, got.Error)
	}
	if _, _, err := svc.Export(ctx, job.ID, export.JSON); err != nil {
		t.Errorf("export of cancelled job: %v", err)
	}
}

// rejectingPool refuses every task after running before.
type rejectingPool struct{ before func() }

func (p rejectingPool) Submit(context.Context, func()) error {
	if p.before != nil {
		p.before()
	}
	return errors.New("pool closed")
}

func drainEnvelopes(ch <-chan events.Envelope) []events.Envelope {
	var out []events.Envelope
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestServiceSchedulingFailure(t *testing.T) {
	repo := newTestRepo(t)
	svc, ch := newTestService(t, repo, rejectingPool{}, placeholder.New())
	ctx := t.Context()

	if _, err := svc.Submit(ctx, SubmitRequest{SourceName: "memo.wav", MimeType: "audio/wav", Data: wavSeconds(t, 6)}); err == nil {
		t.Fatal("expected scheduling error")
	}

	envs := drainEnvelopes(ch)
	if len(envs) != 2 || envs[0].Type != events.JobQueued || envs[1].Type != events.JobFailed {
		t.Fatalf("events = %+v", envs)
	}
	job, err := svc.Get(ctx, envs[0].JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusFailed || !strings.Contains(job.Error, "scheduling failed: pool closed") {
		t.Errorf("job = %+v", job)
	}
}

func TestServiceLogsUnpersistedFailure(t *testing.T) {
	repo := newTestRepo(t)
	sqlDB, err := repo.db(t.Context(), false).DB()
	if err != nil {
		t.Fatal(err)
	}
	pool := rejectingPool{before: func() { _ = sqlDB.Close() }}
	svc, _ := newTestService(t, repo, pool, placeholder.New())

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, err := svc.Submit(t.Context(), SubmitRequest{SourceName: "memo.wav", MimeType: "audio/wav", Data: wavSeconds(t, 6)}); err == nil {
		t.Fatal("expected scheduling error")
	}
	out := buf.String()
	if !strings.Contains(out, "persisting failed job") || !strings.Contains(out, "database is closed") {
		t.Errorf("log output:\n%s", out)
	}
}
