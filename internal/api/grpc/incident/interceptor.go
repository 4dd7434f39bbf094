package incident

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
)

// UnaryServerInterceptor logs and counts every unary call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)

		observe(ctx, m, info.FullMethod, started, err)

		return resp, err
	}
}

// StreamServerInterceptor logs and counts every stream when it ends.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		started := time.Now()
		err := handler(srv, ss)

		observe(ss.Context(), m, info.FullMethod, started, err)

		return err
	}
}

func observe(ctx context.Context, m *metrics.Metrics, fullMethod string, started time.Time, err error) {
	method := path.Base(fullMethod)
	code := status.Code(err)

	if m != nil {
		m.StoreRequests.WithLabelValues(method, code.String()).Inc()
	}

	kvs := []any{"method", method, "code", code.String(), "duration", time.Since(started)}
	if err != nil {
		logger.WarnKV(ctx, "Request failed", append(kvs, "error", err)...)

		return
	}

	logger.DebugKV(ctx, "Request served", kvs...)
}
