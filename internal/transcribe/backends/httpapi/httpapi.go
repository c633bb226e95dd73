// Package httpapi talks to any OpenAI-compatible transcription endpoint
// with a hand-built multipart request.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
	"github.com/voicetyped/chunkscribe/internal/transcribe/backends/restutil"
)

// Name is the registry name of this backend.
const Name = "httpapi"

func init() {
	transcribe.Backends.Register(Name, func(settings transcribe.Settings) (transcribe.Backend, error) {
		apiKey := settings.Get("httpapi_api_key", "openai_api_key", "api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("httpapi: %w (set openai_api_key)", transcribe.ErrMissingCredentials)
		}
		return New(Options{
			APIKey:   apiKey,
			BaseURL:  settings.GetOr("https://api.openai.com/v1", "httpapi_base_url", "openai_base_url", "base_url"),
			Model:    settings.GetOr("whisper-1", "model"),
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

// Backend posts each chunk to {BaseURL}/audio/transcriptions.
type Backend struct {
	opts Options
}

// New creates a backend from opts.
func New(opts Options) *Backend {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Backend{opts: opts}
}

func (b *Backend) Name() string        { return Name }
func (b *Backend) Authoritative() bool { return true }

type response struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Segments []transcribe.Span `json:"segments"`
}

func (b *Backend) Transcribe(ctx context.Context, seg encoder.EncodedSegment) (transcribe.Result, error) {
	body, contentType, err := restutil.Multipart("file", seg.Filename(), seg.Data, map[string]string{
		"model":           b.opts.Model,
		"response_format": "verbose_json",
		"language":        b.opts.Language,
	})
	if err != nil {
		return transcribe.Result{}, &transcribe.Error{Kind: transcribe.KindUnknown, Backend: Name, Cause: err}
	}

	var resp response
	err = restutil.DoJSON(ctx, b.opts.HTTPClient, restutil.Request{
		Backend: Name,
		Method:  http.MethodPost,
		URL:     b.opts.BaseURL + "/audio/transcriptions",
		Headers: map[string]string{
			"Authorization": "Bearer " + b.opts.APIKey,
			"Content-Type":  contentType,
		},
		Body: body,
	}, &resp)
	if err != nil {
		return transcribe.Result{}, err
	}

	return transcribe.Result{Text: resp.Text, Language: resp.Language, Spans: resp.Segments}, nil
}

func (b *Backend) Models() []transcribe.ModelInfo {
	return []transcribe.ModelInfo{
		{ID: "whisper-1", DisplayName: "Whisper 1", IsDefault: true},
	}
}
