// Package restutil holds the HTTP plumbing shared by REST transcription
// backends.
package restutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/voicetyped/chunkscribe/internal/transcribe"
)

// DefaultClient carries no timeout of its own; per-call deadlines come from
// the context.
var DefaultClient = &http.Client{}

// maxErrorBody caps how much of a failed response is read into the error.
const maxErrorBody = 4 << 10

// Request describes one backend call.
type Request struct {
	Backend string
	Method  string
	URL     string
	Headers map[string]string
	Body    io.Reader
}

// DoRaw sends req and returns the response body on a 2xx status. Failures
// are returned as *transcribe.Error.
func DoRaw(ctx context.Context, client *http.Client, req Request) (io.ReadCloser, error) {
	if client == nil {
		client = DefaultClient
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, &transcribe.Error{Kind: transcribe.KindUnknown, Backend: req.Backend, Message: "create request", Cause: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, transcribe.TransportError(req.Backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, transcribe.StatusError(req.Backend, resp.StatusCode, string(respBody))
	}

	return resp.Body, nil
}

// DoJSON sends req and decodes the JSON response into dest.
func DoJSON(ctx context.Context, client *http.Client, req Request, dest any) error {
	body, err := DoRaw(ctx, client, req)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dest); err != nil {
		return &transcribe.Error{Kind: transcribe.KindUnknown, Backend: req.Backend, Message: "decode response", Cause: err}
	}
	return nil
}

// Multipart builds a multipart form holding one file part and plain fields.
// Empty field values are omitted.
func Multipart(fileField, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
