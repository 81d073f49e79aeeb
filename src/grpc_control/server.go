package grpc_control

import (
	"context"
	"errors"
	"net"
	"time"

	"nepse-observer/src/logger"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server hosts the control and health services.
type Server struct {
	Addr    string
	Service *ControlService
	Logger  *logger.Logger

	grpc *grpc.Server
}

func NewServer(addr string, jobs JobController, log *logger.Logger) *Server {
	svc := NewControlService(jobs, log)
	g := grpc.NewServer(grpc.UnaryInterceptor(logCalls(log)))
	RegisterControlServer(g, svc)
	healthpb.RegisterHealthServer(g, svc.Health)
	return &Server{Addr: addr, Service: svc, Logger: log, grpc: g}
}

// -----------------------------------------------------------------------------

// Start listens on Addr and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("Starting gRPC control server on %s", lis.Addr())
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING to health watchers, then drains in-flight calls.
func (s *Server) Stop() {
	s.Service.Health.Shutdown()
	s.grpc.GracefulStop()
}

// -----------------------------------------------------------------------------

func logCalls(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("gRPC %s %s %v", info.FullMethod, status.Code(err), time.Since(started).Round(time.Microsecond))
		return resp, err
	}
}
