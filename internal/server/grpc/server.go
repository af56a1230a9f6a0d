// Package grpc exposes the standard gRPC health service. Besides the overall
// status it publishes one service name per job kind whose status follows the
// outcome of the latest run.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/jobs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address string
	health  *health.Server
	logger  logging.Logger
}

func NewGRPCServer(address string, l logging.Logger) *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, k := range jobs.Kinds {
		hs.SetServingStatus(ServiceName(k), healthpb.HealthCheckResponse_SERVING)
	}
	return &GRPCServer{
		address: address,
		health:  hs,
		logger:  l.With("module", "grpc_server"),
	}
}

// Health returns the underlying health server.
func (s *GRPCServer) Health() *health.Server { return s.health }

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}
