package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetyped/chunkscribe/internal/encoder"
)

// PlaceholderName is the registry name of the non-authoritative backend.
const PlaceholderName = "placeholder"

// Select builds the named backend from the global registry. When the
// backend's credentials are absent the placeholder backend is returned
// instead. The choice is made once; callers never branch on it again.
func Select(name string, settings Settings) (Backend, error) {
	return SelectFrom(Backends, name, settings)
}

// SelectFrom is Select over an explicit registry.
func SelectFrom(reg *Registry[Backend], name string, settings Settings) (Backend, error) {
	if name == "" {
		name = PlaceholderName
	}
	b, err := reg.Create(name, settings)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrMissingCredentials) {
		return nil, fmt.Errorf("create backend %q: %w", name, err)
	}

	slog.Warn("transcription credentials missing, using placeholder backend",
		slog.String("backend", name))
	b, perr := reg.Create(PlaceholderName, settings)
	if perr != nil {
		return nil, fmt.Errorf("create backend %q: %w (fallback: %w)", name, err, perr)
	}
	return b, nil
}

type timeoutBackend struct {
	Backend
	timeout time.Duration
}

// WithTimeout bounds every Transcribe call on b to d. Expiry is reported as
// a KindTimeout error. A non-positive d returns b unchanged.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		return b
	}
	return &timeoutBackend{Backend: b, timeout: d}
}

func (t *timeoutBackend) Transcribe(ctx context.Context, seg encoder.EncodedSegment) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.Backend.Transcribe(callCtx, seg)
	if err == nil {
		return res, nil
	}
	// Only our own deadline counts as a timeout; the caller's cancellation
	// passes through.
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Result{}, &Error{
			Kind:    KindTimeout,
			Backend: t.Name(),
			Message: fmt.Sprintf("no response within %s", t.timeout),
			Cause:   err,
		}
	}
	return Result{}, err
}
