package audio

import "fmt"

// DecodeError reports that a blob could not be turned into RawAudio.
// It is unrecoverable for the request that produced it.
type DecodeError struct {
	MimeType string
	Reason   string
	Cause    error
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.MimeType != "" {
		msg += " " + e.MimeType
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func decodeErr(mimeType, reason string, cause error) error {
	return &DecodeError{MimeType: mimeType, Reason: reason, Cause: cause}
}

func decodeErrf(mimeType, format string, args ...any) error {
	return &DecodeError{MimeType: mimeType, Reason: fmt.Sprintf(format, args...)}
}
