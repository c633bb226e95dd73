package connectutil

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// H2CHandler serves handler over cleartext HTTP/2 next to HTTP/1.1 so
// WatchJob streams work without TLS. Per-stream upload windows are raised
// for multi-megabyte audio uploads.
func H2CHandler(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams:         128,
		MaxReadFrameSize:             1 << 20,
		MaxUploadBufferPerStream:     8 << 20,
		MaxUploadBufferPerConnection: 32 << 20,
		IdleTimeout:                  5 * time.Minute,
	})
}
