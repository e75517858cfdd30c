package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that tags the context with a request id and
// logs each RPC with its code and latency. Methods in skipMethods are not logged.
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := requestID(ctx)
		ctx = WithRequestID(ctx, id)
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
			zap.String("client_ip", ClientIP(ctx)),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.InvalidArgument, codes.Unauthenticated:
			logger.Info("grpc request", fields...)
		default:
			logger.Warn("grpc request", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
