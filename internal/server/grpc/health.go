package grpcserver

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	logpkg "github.com/rzbill/strata/pkg/log"
)

// ControllerService is the health service name that reports NOT_SERVING
// while the stream creation breaker is open.
const ControllerService = "strata.controller"

// refreshHealth sets the overall status from storage health and the
// controller status from the breaker.
func (s *Server) refreshHealth(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("storage unhealthy", logpkg.Err(err))
	}
	s.health.SetServingStatus("", overall)

	ctrl := overall
	if s.rt.Breaker().IsOverload() {
		ctrl = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ControllerService, ctrl)
}

func (s *Server) watchHealth(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshHealth(ctx)
		}
	}
}
