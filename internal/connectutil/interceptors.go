package connectutil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/security"
	connectInterceptors "github.com/pitabwire/frame/security/interceptors/connect"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// DefaultOptions returns the Connect handler options for unauthenticated
// endpoints: the JSON codec and request logging.
func DefaultOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewLoggingInterceptor()),
	}
}

// AuthenticatedOptions returns Connect handler options with frame's full
// security interceptor chain (OpenTelemetry, validation, authentication)
// ahead of the logging interceptor.
func AuthenticatedOptions(ctx context.Context, authenticator security.Authenticator) ([]connect.HandlerOption, error) {
	interceptors, err := connectInterceptors.DefaultList(ctx, authenticator)
	if err != nil {
		return nil, err
	}
	interceptors = append(interceptors, NewLoggingInterceptor())

	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(interceptors...),
	}, nil
}

// AuthenticatedHTTPMiddleware wraps an http.Handler with frame's
// authentication middleware, validating bearer tokens on REST endpoints.
func AuthenticatedHTTPMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}

// DefaultClientOptions returns the Connect client options matching
// DefaultOptions.
func DefaultClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewLoggingInterceptor()),
	}
}

type loggingInterceptor struct{}

// jobScoped is implemented by request messages addressing a single job.
type jobScoped interface {
	GetJobID() string
}

// NewLoggingInterceptor creates an interceptor that logs procedure,
// duration and error code for unary and streaming calls.
func NewLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func logResult(ctx context.Context, procedure string, streaming bool, start time.Time, err error, extra ...any) {
	attrs := append([]any{
		slog.String("procedure", procedure),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("streaming", streaming),
	}, extra...)
	if err != nil {
		attrs = append(attrs,
			slog.String("code", connect.CodeOf(err).String()),
			slog.String("error", err.Error()))
		slog.WarnContext(ctx, "rpc failed", attrs...)
		return
	}
	slog.DebugContext(ctx, "rpc served", attrs...)
}

func (l *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		var extra []any
		if m, ok := req.Any().(jobScoped); ok && m.GetJobID() != "" {
			extra = append(extra, slog.String("job_id", m.GetJobID()))
		}
		logResult(ctx, req.Spec().Procedure, false, start, err, extra...)
		return resp, err
	}
}

func (l *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		slog.DebugContext(ctx, "opening rpc stream", slog.String("procedure", spec.Procedure))
		return next(ctx, spec)
	}
}

// WrapStreamingHandler logs when the stream ends; a WatchJob stream lives
// as long as the job it follows.
func (l *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		logResult(ctx, conn.Spec().Procedure, true, start, err)
		return err
	}
}
