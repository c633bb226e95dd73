package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeSerialization(t *testing.T) {
	raw, err := json.Marshal(&ChunkFailedData{ChunkIndex: 2, StartTime: 1200, EndTime: 1800, Error: "transient (HTTP 503)"})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:        "test-id",
		Type:      ChunkFailed,
		Source:    "chunkscribe",
		JobID:     "job-123",
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Type != ChunkFailed || decoded.JobID != "job-123" {
		t.Errorf("decoded = %+v", decoded)
	}

	var payload ChunkFailedData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ChunkIndex != 2 || payload.EndTime != 1800 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEventTypes(t *testing.T) {
	types := []EventType{JobQueued, JobStarted, JobProgress, ChunkFailed, JobCompleted, JobFailed, JobCancelled, CallbackFailed}
	seen := make(map[EventType]bool)
	terminal := 0
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
		if et.Terminal() {
			terminal++
		}
	}
	if terminal != 3 {
		t.Errorf("terminal types = %d, want 3", terminal)
	}
}

func TestLocalFanOutWithoutQueue(t *testing.T) {
	p := NewPublisher(nil, "chunkscribe", "events")
	sub := p.Subscribe("", 4)

	if err := p.Emit(t.Context(), JobProgress, "job-1", &ProgressData{State: "submitting", CurrentChunk: 1, TotalChunks: 3}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case env := <-sub.C:
		if env.Type != JobProgress || env.JobID != "job-1" || env.ID == "" {
			t.Errorf("envelope = %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	p.Unsubscribe(sub)
	p.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestJobScopedSubscription(t *testing.T) {
	p := NewPublisher(nil, "chunkscribe", "events")
	sub := p.Subscribe("job-2", 4)
	defer p.Unsubscribe(sub)

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := p.Emit(t.Context(), JobStarted, id, &StartedData{Backend: "placeholder"}); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(sub.C); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	if env := <-sub.C; env.JobID != "job-2" {
		t.Errorf("job = %q, want job-2", env.JobID)
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	p := NewPublisher(nil, "chunkscribe", "events")
	sub := p.Subscribe("", 1)
	for range 3 {
		if err := p.Emit(t.Context(), JobProgress, "job-1", nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(sub.C); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}
