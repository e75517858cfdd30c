// Package server assembles the gRPC and HTTP servers.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"booking-intake/backend/internal/health"
	"booking-intake/backend/internal/server/interceptors"
	"booking-intake/backend/internal/telemetry"
)

// Health check RPCs are polled constantly; keep them out of logs and telemetry.
var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// Deps holds the gRPC server dependencies.
type Deps struct {
	// Health backs grpc.health.v1.Health. Required.
	Health *health.Checker
	// Events receives one event per RPC. If nil, no telemetry is emitted.
	Events telemetry.EventEmitter
	Logger *zap.Logger
}

// NewGRPCServer returns a server with OTel instrumentation, request logging, health and reflection.
func NewGRPCServer(deps Deps) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(logger, quietMethods),
			interceptors.TelemetryUnary(deps.Events, logger, quietMethods),
		),
	)
	RegisterServices(s, deps)
	reflection.Register(s)
	return s
}

// RegisterServices registers the gRPC services with the given server.
//
//   - grpc.health.v1.Health → internal/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, deps.Health.GRPCServer())
}
