package grpc

import (
	"context"

	"github.com/cateringhub/backoffice/internal/server/jobs"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for a job kind.
func ServiceName(kind jobs.Kind) string {
	return "jobs." + string(kind)
}

// Record implements jobs.Sink. Skipped runs leave the status unchanged.
func (s *GRPCServer) Record(_ context.Context, res jobs.Result) error {
	switch res.Status {
	case jobs.StatusSucceeded:
		s.health.SetServingStatus(ServiceName(res.Kind), healthpb.HealthCheckResponse_SERVING)
	case jobs.StatusFailed:
		s.health.SetServingStatus(ServiceName(res.Kind), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return nil
}
