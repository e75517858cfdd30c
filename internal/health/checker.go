// Package health reports readiness over gRPC and HTTP.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the intake API.
const ServiceName = "booking.intake"

const probeTimeout = 2 * time.Second

// Pinger is implemented by stores and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the policy evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Probe is one readiness check.
type Probe func(ctx context.Context) error

// PingProbe adapts a Pinger.
func PingProbe(p Pinger) Probe { return p.PingContext }

// PolicyProbe adapts a PolicyChecker.
func PolicyProbe(p PolicyChecker) Probe { return p.HealthCheck }

// Checker runs named probes and mirrors the result into a gRPC health server.
type Checker struct {
	grpc   *grpchealth.Server
	logger *zap.Logger

	mu     sync.RWMutex
	probes map[string]Probe
	order  []string
}

// NewChecker returns a Checker with no probes; it reports SERVING until one fails.
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{grpc: grpchealth.NewServer(), logger: logger, probes: map[string]Probe{}}
}

// Register adds a probe. A nil probe is ignored.
func (c *Checker) Register(name string, p Probe) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.probes[name]; !ok {
		c.order = append(c.order, name)
	}
	c.probes[name] = p
}

// GRPCServer returns the health server to register with grpc.
func (c *Checker) GRPCServer() *grpchealth.Server { return c.grpc }

// Check runs every probe and updates the gRPC serving status. It returns the failures by name.
func (c *Checker) Check(ctx context.Context) map[string]error {
	c.mu.RLock()
	names := append([]string(nil), c.order...)
	probes := make([]Probe, len(names))
	for i, n := range names {
		probes[i] = c.probes[n]
	}
	c.mu.RUnlock()

	failed := map[string]error{}
	for i, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probes[i](pctx)
		cancel()
		if err != nil {
			failed[name] = err
			c.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
		}
	}
	st := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.grpc.SetServingStatus("", st)
	c.grpc.SetServingStatus(ServiceName, st)
	return failed
}

// Err folds the failures of Check into one error.
func (c *Checker) Err(ctx context.Context) error {
	var errs []error
	for name, err := range c.Check(ctx) {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

// Run re-checks every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (c *Checker) Shutdown() { c.grpc.Shutdown() }

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP answers 200 when every probe passes and 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	failed := c.Check(r.Context())
	if len(failed) == 0 {
		render.JSON(w, r, response{Status: "ok"})
		return
	}
	checks := make(map[string]string, len(failed))
	for name := range failed {
		checks[name] = "failing"
	}
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, response{Status: "unavailable", Checks: checks})
}
