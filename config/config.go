// Package config declares the environment-driven settings of the service
// and CLI binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pitabwire/frame/config"

	"github.com/voicetyped/chunkscribe/internal/audio"
	"github.com/voicetyped/chunkscribe/internal/chunker"
	"github.com/voicetyped/chunkscribe/internal/orchestrator"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
)

// Transcription holds the backend and chunking settings shared by both
// binaries.
type Transcription struct {
	Backend           string `envDefault:"openai"                    env:"TRANSCRIBE_BACKEND"`
	OpenAIAPIKey      string `envDefault:""                          env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envDefault:"https://api.openai.com/v1" env:"OPENAI_BASE_URL"`
	DeepgramAPIKey    string `envDefault:""                          env:"DEEPGRAM_API_KEY"`
	Model             string `envDefault:"whisper-1"                 env:"TRANSCRIBE_MODEL"`
	Language          string `envDefault:""                          env:"TRANSCRIBE_LANGUAGE"`
	TimeoutSec        int    `envDefault:"60"                        env:"TRANSCRIBE_TIMEOUT_SEC"`
	ChunkDurationSec  int    `envDefault:"600"                       env:"CHUNK_DURATION_SEC"`
	ChunkOverlapSec   int    `envDefault:"0"                         env:"CHUNK_OVERLAP_SEC"`
	MaxChunkSizeBytes int64  `envDefault:"26214400"                  env:"MAX_CHUNK_SIZE_BYTES"`
	ChunkPacingMs     int    `envDefault:"500"                       env:"CHUNK_PACING_MS"`
	ChunkMaxRetries   int    `envDefault:"2"                         env:"CHUNK_MAX_RETRIES"`
	RetryBackoffMs    int    `envDefault:"2000"                      env:"CHUNK_RETRY_BACKOFF_MS"`
	ProfileDir        string `envDefault:"./profiles"                env:"PROFILE_DIR"`
	FFmpegPath        string `envDefault:"ffmpeg"                    env:"FFMPEG_PATH"`
}

// Chunking returns the segmenter settings.
func (t *Transcription) Chunking() chunker.Config {
	return chunker.Config{
		TargetDurationSeconds: float64(t.ChunkDurationSec),
		OverlapSeconds:        float64(t.ChunkOverlapSec),
		MaxChunkBytes:         t.MaxChunkSizeBytes,
	}
}

// Orchestrator returns the run settings.
func (t *Transcription) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Chunking:      t.Chunking(),
		MaxRetries:    t.ChunkMaxRetries,
		RetryBackoff:  time.Duration(t.RetryBackoffMs) * time.Millisecond,
		Pacing:        time.Duration(t.ChunkPacingMs) * time.Millisecond,
		SubmitTimeout: time.Duration(t.TimeoutSec) * time.Second,
	}
}

// Decoder returns an audio decoder that extracts through the configured
// ffmpeg binary.
func (t *Transcription) Decoder() *audio.Decoder {
	return audio.NewDecoder(&audio.FFmpegExtractor{Binary: t.FFmpegPath})
}

// BackendSettings resolves the backend name and settings for a profile. Profile
// fields override the environment.
func (t *Transcription) BackendSettings(p profiles.Profile) (string, transcribe.Settings) {
	name := t.Backend
	if p.Backend != "" {
		name = p.Backend
	}
	settings := transcribe.Settings{
		"openai_api_key":   t.OpenAIAPIKey,
		"openai_base_url":  t.OpenAIBaseURL,
		"deepgram_api_key": t.DeepgramAPIKey,
		"model":            t.Model,
		"language":         t.Language,
	}
	if p.Model != "" {
		settings["model"] = p.Model
		settings["deepgram_model"] = p.Model
	}
	if p.Language != "" {
		settings["language"] = p.Language
	}
	return name, settings
}

// NewBackend builds the transcription backend for a profile, falling back
// to the placeholder when credentials are missing.
func (t *Transcription) NewBackend(p profiles.Profile) (transcribe.Backend, error) {
	name, settings := t.BackendSettings(p)
	return transcribe.Select(name, settings)
}

// ServiceConfig configures the chunkscribed service.
type ServiceConfig struct {
	config.ConfigurationDefault
	Transcription

	MaxUploadBytes int64 `envDefault:"2147483648" env:"MAX_UPLOAD_BYTES"`
	AuthEnabled    bool  `envDefault:"false"      env:"AUTH_ENABLED"`

	// Callbacks
	CallbackSecret          string `envDefault:""      env:"CALLBACK_SECRET"`
	CallbackMaxAttempts     int    `envDefault:"5"     env:"CALLBACK_MAX_ATTEMPTS"`
	CallbackTimeoutSec      int    `envDefault:"10"    env:"CALLBACK_TIMEOUT_SEC"`
	CallbackBackoffSec      int    `envDefault:"1"     env:"CALLBACK_BACKOFF_INITIAL_SEC"`
	CallbackBackoffMaxSec   int    `envDefault:"300"   env:"CALLBACK_BACKOFF_MAX_SEC"`
	CallbackBreakerFails    uint32 `envDefault:"5"     env:"CALLBACK_BREAKER_FAILURES"`
	CallbackBreakerResetSec int    `envDefault:"60"    env:"CALLBACK_BREAKER_RESET_SEC"`
	CallbackAllowPrivate    bool   `envDefault:"false" env:"CALLBACK_ALLOW_PRIVATE"`
}

// CLIConfig configures the chunkscribe command. Every key carries the
// CHUNKSCRIBE_ prefix.
type CLIConfig struct {
	Transcription

	OutputDir string `envDefault:"."                     env:"OUTPUT_DIR"`
	ServerURL string `envDefault:"http://localhost:8080" env:"SERVER_URL"`
}

// CLIEnvPrefix prefixes every CLI environment key.
const CLIEnvPrefix = "CHUNKSCRIBE_"

// LoadCLI reads an optional dotenv file and parses CLIConfig from the
// environment. A missing dotenv file is not an error.
func LoadCLI(dotenvPath string) (CLIConfig, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return CLIConfig{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}
	var cfg CLIConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: CLIEnvPrefix}); err != nil {
		return CLIConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
