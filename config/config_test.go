package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicetyped/chunkscribe/internal/profiles"
)

func TestLoadCLIDefaults(t *testing.T) {
	cfg, err := LoadCLI(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "openai" || cfg.ChunkDurationSec != 600 || cfg.MaxChunkSizeBytes != 26214400 {
		t.Errorf("defaults = %+v", cfg.Transcription)
	}

	oc := cfg.Orchestrator()
	if oc.MaxRetries != 2 || oc.RetryBackoff != 2*time.Second || oc.Pacing != 500*time.Millisecond || oc.SubmitTimeout != time.Minute {
		t.Errorf("orchestrator config = %+v", oc)
	}
	if oc.Chunking.TargetDurationSeconds != 600 || oc.Chunking.OverlapSeconds != 0 {
		t.Errorf("chunking = %+v", oc.Chunking)
	}
}

func TestLoadCLIReadsPrefixedEnvAndDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CHUNKSCRIBE_CHUNK_OVERLAP_SEC=3\nCHUNKSCRIBE_OUTPUT_DIR=/tmp/out\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHUNKSCRIBE_TRANSCRIBE_BACKEND", "deepgram")
	t.Setenv("CHUNKSCRIBE_CHUNK_DURATION_SEC", "120")
	// godotenv.Load never overrides variables already set, so make sure
	// the file's keys start out unset.
	t.Setenv("CHUNKSCRIBE_CHUNK_OVERLAP_SEC", "")
	os.Unsetenv("CHUNKSCRIBE_CHUNK_OVERLAP_SEC")
	t.Setenv("CHUNKSCRIBE_OUTPUT_DIR", "")
	os.Unsetenv("CHUNKSCRIBE_OUTPUT_DIR")

	cfg, err := LoadCLI(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "deepgram" || cfg.ChunkDurationSec != 120 || cfg.ChunkOverlapSec != 3 || cfg.OutputDir != "/tmp/out" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestBackendSettingsProfileOverrides(t *testing.T) {
	tr := Transcription{Backend: "openai", OpenAIAPIKey: "sk", Model: "whisper-1", Language: "en"}

	name, s := tr.BackendSettings(profiles.Profile{Name: profiles.DefaultName})
	if name != "openai" || s.Get("model") != "whisper-1" || s.Get("language") != "en" {
		t.Errorf("default profile = %s %v", name, s)
	}

	name, s = tr.BackendSettings(profiles.Profile{Name: "fr", Backend: "httpapi", Model: "large-v3", Language: "fr"})
	if name != "httpapi" || s.Get("model") != "large-v3" || s.Get("language") != "fr" || s.Get("openai_api_key") != "sk" {
		t.Errorf("override profile = %s %v", name, s)
	}
}
