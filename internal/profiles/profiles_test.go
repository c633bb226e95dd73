package profiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicetyped/chunkscribe/internal/chunker"
)

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoaderLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "podcast.yaml", `
name: podcast
description: long form speech
chunk_duration_seconds: 300
overlap_seconds: 2
language: en
`)
	writeProfile(t, dir, "lecture.yml", `
chunk_duration_seconds: 120
max_chunk_size: 10485760
`)
	writeProfile(t, dir, "notes.txt", "ignored")

	loader := NewLoader(dir)
	got, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d profiles, want 3 (incl. default)", len(got))
	}

	lecture, ok := loader.Get("lecture")
	if !ok {
		t.Fatal("name should default to the file stem")
	}
	cfg := lecture.Chunking(chunker.DefaultConfig())
	if cfg.TargetDurationSeconds != 120 || cfg.MaxChunkBytes != 10485760 || cfg.OverlapSeconds != 0 {
		t.Errorf("lecture chunking = %+v", cfg)
	}

	if p, ok := loader.Get(""); !ok || p.Name != DefaultName {
		t.Errorf("empty name should resolve to default, got %+v", p)
	}

	list := loader.List()
	if list[0].Name != DefaultName || list[1].Name != "lecture" || list[2].Name != "podcast" {
		t.Errorf("List order = %v", list)
	}
}

func TestChunkingExplicitZeroOverlap(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "tight.yaml", "overlap_seconds: 0\n")
	writeProfile(t, dir, "loose.yaml", "chunk_duration_seconds: 60\n")

	loader := NewLoader(dir)
	if _, err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	base := chunker.DefaultConfig()
	base.OverlapSeconds = 3

	tests := []struct {
		profile string
		want    float64
	}{
		{"tight", 0},
		{"loose", 3},
		{DefaultName, 3},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			p, ok := loader.Get(tt.profile)
			if !ok {
				t.Fatalf("profile %q not loaded", tt.profile)
			}
			if got := p.Chunking(base).OverlapSeconds; got != tt.want {
				t.Errorf("overlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"negative":  "chunk_duration_seconds: -1\n",
		"overlap":   "chunk_duration_seconds: 10\noverlap_seconds: 10\n",
		"malformed": "chunk_duration_seconds: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeProfile(t, dir, "bad.yaml", body)
			loader := NewLoader(dir)
			if _, err := loader.LoadAll(); err == nil {
				t.Fatal("expected error")
			}
			if _, ok := loader.Get(DefaultName); !ok {
				t.Error("default profile should survive a failed load")
			}
		})
	}
}

func TestWatchAndReload(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	if _, err := loader.LoadAll(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- loader.WatchAndReload(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeProfile(t, dir, "meeting.yaml", "chunk_duration_seconds: 60\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := loader.Get("meeting"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("profile was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("WatchAndReload: %v", err)
	}
}
