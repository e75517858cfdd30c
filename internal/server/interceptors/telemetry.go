package interceptors

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"booking-intake/backend/internal/telemetry"
)

// TelemetryUnary returns a unary server interceptor that emits a telemetry event after each RPC.
// Best-effort: failures are logged and do not fail the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. health checks).
func TelemetryUnary(emitter telemetry.EventEmitter, logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		attrs := map[string]string{
			"full_method": info.FullMethod,
			"status_code": status.Code(err).String(),
			"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
			"client_ip":   ClientIP(ctx),
		}
		if id, ok := GetRequestID(ctx); ok {
			attrs["request_id"] = id
		}
		telemetry.EmitAsync(emitter, logger, &telemetry.Event{
			Type:       telemetry.EventGRPCRequest,
			Source:     "grpc_interceptor",
			Attributes: attrs,
		})
		return resp, err
	}
}
