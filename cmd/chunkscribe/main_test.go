package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/chunker"
	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe/backends/placeholder"
	"github.com/voicetyped/chunkscribe/pkg/export"
)

func writeWAV(t *testing.T, dir string, seconds int) string {
	t.Helper()
	samples := make([]float32, seconds*1000)
	for i := range samples {
		samples[i] = float32(i%40) / 80
	}
	raw, err := audio.NewRawAudio(1000, [][]float32{samples})
	if err != nil {
		t.Fatal(err)
	}
	seg, err := encoder.New(0).Encode(t.Context(), chunker.Materialize(raw, chunker.Bounds{EndTime: float64(seconds)}))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "meeting.wav")
	if err := os.WriteFile(path, seg.Data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHUNKSCRIBE_OPENAI_API_KEY", "")
	t.Setenv("CHUNKSCRIBE_CHUNK_PACING_MS", "0")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in      string
		want    []export.Format
		wantErr bool
	}{
		{in: "txt", want: []export.Format{export.TXT}},
		{in: "srt,VTT", want: []export.Format{export.SRT, export.VTT}},
		{in: "all", want: export.Formats},
		{in: "docx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFormats(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestTranscribeWritesExports(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, 12)
	outDir := filepath.Join(dir, "out")

	log, err := run(t, "transcribe", path, "--format", "srt,json", "--out", outDir, "--chunk-duration", "10")
	if err != nil {
		t.Fatalf("transcribe: %v\n%s", err, log)
	}
	if !strings.Contains(log, "placeholder") || !strings.Contains(log, "chunk 2/2") {
		t.Errorf("progress output:\n%s", log)
	}

	srt, err := os.ReadFile(filepath.Join(outDir, "meeting.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(srt), placeholder.Text(1, 10, 12)) {
		t.Errorf("srt:\n%s", srt)
	}
	if _, err := os.Stat(filepath.Join(outDir, "meeting.json")); err != nil {
		t.Error(err)
	}
}

func TestPlanPrintsBoundaries(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, 25)
	t.Setenv("CHUNKSCRIBE_CHUNK_DURATION_SEC", "10")

	out, err := run(t, "plan", path)
	if err != nil {
		t.Fatalf("plan: %v\n%s", err, out)
	}
	for _, want := range []string{"chunk length 10 s", "00:20.000", "00:25.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProfilesListsDirectory(t *testing.T) {
	dir := t.TempDir()
	yaml := "name: podcast\ndescription: long form\nchunk_duration_seconds: 300\n"
	if err := os.WriteFile(filepath.Join(dir, "podcast.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "profiles", "--dir", dir)
	if err != nil {
		t.Fatalf("profiles: %v\n%s", err, out)
	}
	if !strings.Contains(out, "default") || !strings.Contains(out, "podcast") || !strings.Contains(out, "300s") {
		t.Errorf("output:\n%s", out)
	}
}

func TestBackendsListsRegistry(t *testing.T) {
	t.Setenv("CHUNKSCRIBE_DEEPGRAM_API_KEY", "dg-test")

	out, err := run(t, "backends")
	if err != nil {
		t.Fatalf("backends: %v\n%s", err, out)
	}
	for _, want := range []string{"deepgram", "nova-2-meeting", "openai *", "credentials not configured", "placeholder text"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "backends", "whisper-local"); err == nil {
		t.Error("expected unknown backend error")
	}
}
