// Package deepgram transcribes chunks with the Deepgram pre-recorded API.
package deepgram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/voicetyped/chunkscribe/internal/encoder"
	"github.com/voicetyped/chunkscribe/internal/transcribe"
	"github.com/voicetyped/chunkscribe/internal/transcribe/backends/restutil"
)

// Name is the registry name of this backend.
const Name = "deepgram"

func init() {
	transcribe.Backends.Register(Name, func(settings transcribe.Settings) (transcribe.Backend, error) {
		apiKey := settings.Get("deepgram_api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("deepgram: %w (set deepgram_api_key)", transcribe.ErrMissingCredentials)
		}
		return New(Options{
			APIKey:   apiKey,
			BaseURL:  settings.GetOr("https://api.deepgram.com/v1", "deepgram_base_url"),
			Model:    settings.GetOr("nova-2", "deepgram_model"),
			Language: settings.GetOr("en", "language"),
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

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
				Paragraphs struct {
					Paragraphs []struct {
						Sentences []struct {
							Text  string  `json:"text"`
							Start float64 `json:"start"`
							End   float64 `json:"end"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Backend posts the WAV payload as the raw request body.
type Backend struct {
	opts Options
}

// New creates a backend from opts.
func New(opts Options) *Backend {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Backend{opts: opts}
}

func (d *Backend) Name() string        { return Name }
func (d *Backend) Authoritative() bool { return true }

func (d *Backend) Transcribe(ctx context.Context, seg encoder.EncodedSegment) (transcribe.Result, error) {
	params := url.Values{}
	params.Set("model", d.opts.Model)
	params.Set("language", d.opts.Language)
	params.Set("smart_format", "true")
	params.Set("paragraphs", "true")

	var resp deepgramResponse
	err := restutil.DoJSON(ctx, d.opts.HTTPClient, restutil.Request{
		Backend: Name,
		Method:  http.MethodPost,
		URL:     d.opts.BaseURL + "/listen?" + params.Encode(),
		Headers: map[string]string{
			"Authorization": "Token " + d.opts.APIKey,
			"Content-Type":  seg.MimeType,
		},
		Body: bytes.NewReader(seg.Data),
	}, &resp)
	if err != nil {
		return transcribe.Result{}, err
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return transcribe.Result{}, nil
	}
	ch := resp.Results.Channels[0]
	alt := ch.Alternatives[0]
	res := transcribe.Result{Text: alt.Transcript, Language: ch.DetectedLanguage}
	for _, p := range alt.Paragraphs.Paragraphs {
		for _, s := range p.Sentences {
			res.Spans = append(res.Spans, transcribe.Span{Start: s.Start, End: s.End, Text: s.Text})
		}
	}
	return res, nil
}

func (d *Backend) Models() []transcribe.ModelInfo {
	return []transcribe.ModelInfo{
		{ID: "nova-2", DisplayName: "Nova 2", IsDefault: true},
		{ID: "nova-2-general", DisplayName: "Nova 2 General"},
		{ID: "nova-2-meeting", DisplayName: "Nova 2 Meeting"},
		{ID: "enhanced", DisplayName: "Enhanced"},
		{ID: "base", DisplayName: "Base"},
	}
}
