// Package grpc exposes the standard gRPC health service for the auth
// backend. The status follows the store's reachability.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "authkeeper.Auth"

// Pinger reports store reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address       string
	logger        logging.Logger
	pinger        Pinger
	health        *health.Server
	checkInterval time.Duration
}

func NewGRPCServer(a string, l logging.Logger, p Pinger) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		pinger:        p,
		health:        health.NewServer(),
		checkInterval: 10 * time.Second,
	}
}

// Health returns the underlying health server.
func (s *GRPCServer) Health() *health.Server {
	return s.health
}

// register attaches the services to srv.
func (s *GRPCServer) register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// check sets the serving status from a single ping.
func (s *GRPCServer) check(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.pinger.PingContext(pctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "store ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *GRPCServer) watch(ctx context.Context) {
	t := time.NewTicker(s.checkInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.check(ctx)
		}
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	s.register(srv)
	s.check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
