// Package openai transcribes chunks through the OpenAI audio API using the
// go-openai SDK.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
)

// Name is the registry name of this backend.
const Name = "openai"

func init() {
	transcribe.Backends.Register(Name, func(settings transcribe.Settings) (transcribe.Backend, error) {
		apiKey := settings.Get("openai_api_key", "api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("openai: %w (set openai_api_key)", transcribe.ErrMissingCredentials)
		}
		return New(Options{
			APIKey:   apiKey,
			BaseURL:  settings.Get("openai_base_url", "base_url"),
			Model:    settings.GetOr(goopenai.Whisper1, "model"),
			Language: settings.Get("language"),
		}), nil
	})
}

// Options configures the backend.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	HTTPClient *http.Client
}

// Backend wraps an SDK client.
type Backend struct {
	client   *goopenai.Client
	model    string
	language string
}

// New creates a backend from opts. An empty BaseURL keeps the SDK default.
func New(opts Options) *Backend {
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := opts.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Backend{
		client:   goopenai.NewClientWithConfig(cfg),
		model:    model,
		language: opts.Language,
	}
}

func (o *Backend) Name() string        { return Name }
func (o *Backend) Authoritative() bool { return true }

func (o *Backend) Transcribe(ctx context.Context, seg encoder.EncodedSegment) (transcribe.Result, error) {
	resp, err := o.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    o.model,
		FilePath: seg.Filename(),
		Reader:   bytes.NewReader(seg.Data),
		Language: o.language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return transcribe.Result{}, classify(err)
	}

	res := transcribe.Result{Text: resp.Text, Language: resp.Language}
	for _, s := range resp.Segments {
		res.Spans = append(res.Spans, transcribe.Span{Start: s.Start, End: s.End, Text: s.Text})
	}
	return res, nil
}

func (o *Backend) Models() []transcribe.ModelInfo {
	return []transcribe.ModelInfo{
		{ID: goopenai.Whisper1, DisplayName: "Whisper 1", IsDefault: true},
	}
}

// classify maps SDK errors onto the transcription error kinds.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return transcribe.StatusError(Name, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		e := transcribe.StatusError(Name, reqErr.HTTPStatusCode, "")
		e.Cause = reqErr.Err
		return e
	}
	return transcribe.TransportError(Name, err)
}
