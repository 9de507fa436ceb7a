package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/metrics"
)

// LoggingInterceptor logs every RPC call and stream with the procedure
// name, user ID, duration, and any error codes/messages. If m is non-nil
// the call is also counted and timed.
type LoggingInterceptor struct {
	metrics *metrics.Metrics
}

// Ensure LoggingInterceptor implements connect.Interceptor
var _ connect.Interceptor = (*LoggingInterceptor)(nil)

// NewLoggingInterceptor creates a LoggingInterceptor. m may be nil.
func NewLoggingInterceptor(m *metrics.Metrics) *LoggingInterceptor {
	return &LoggingInterceptor{metrics: m}
}

func (l *LoggingInterceptor) observe(ctx context.Context, procedure string, start time.Time, err error) {
	duration := time.Since(start)
	userID := GetUserID(ctx) // empty if pre-auth

	code := "ok"
	if err != nil {
		code = connect.CodeOf(err).String()
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			slog.Warn("RPC error",
				"procedure", procedure,
				"code", connectErr.Code(),
				"error", connectErr.Message(),
				"user_id", userID,
				"duration_ms", duration.Milliseconds(),
			)
		} else {
			slog.Error("RPC error",
				"procedure", procedure,
				"error", err,
				"user_id", userID,
				"duration_ms", duration.Milliseconds(),
			)
		}
	} else {
		slog.Info("RPC ok",
			"procedure", procedure,
			"user_id", userID,
			"duration_ms", duration.Milliseconds(),
		)
	}

	if l.metrics != nil {
		l.metrics.RPCRequests.WithLabelValues(procedure, code).Inc()
		l.metrics.RPCDuration.WithLabelValues(procedure).Observe(duration.Seconds())
	}
}

// WrapUnary implements connect.Interceptor.
func (l *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		l.observe(ctx, req.Spec().Procedure, start, err)
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (l *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (l *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		slog.Info("Stream opened", "procedure", conn.Spec().Procedure, "user_id", GetUserID(ctx))
		err := next(ctx, conn)
		l.observe(ctx, conn.Spec().Procedure, start, err)
		return err
	}
}
