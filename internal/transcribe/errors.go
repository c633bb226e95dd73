package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a transcription failure.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindAuth            Kind = "auth_error"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindTransient       Kind = "transient"
	KindUnknown         Kind = "unknown"
)

// Error is a typed failure from a backend submission.
type Error struct {
	Kind       Kind
	Backend    string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt may succeed. Rejected
// credentials and oversized payloads never recover on their own.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindPayloadTooLarge:
		return false
	}
	return !errors.Is(e.Cause, context.Canceled)
}

// KindOf extracts the kind of err, or KindUnknown when err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	}
	return KindUnknown
}

// StatusError builds the error for a non-2xx backend response.
func StatusError(backend string, status int, body string) *Error {
	return &Error{
		Kind:       KindForStatus(status),
		Backend:    backend,
		StatusCode: status,
		Message:    truncate(strings.TrimSpace(body), 512),
	}
}

// TransportError classifies a failure that produced no HTTP response.
func TransportError(backend string, err error) *Error {
	kind := KindTransient
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	}
	return &Error{Kind: kind, Backend: backend, Cause: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
