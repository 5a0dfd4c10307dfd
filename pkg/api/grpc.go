package api

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/shepherd/pkg/log"
)

// FleetService is the gRPC health service name reporting fleet status
const FleetService = "shepherd.fleet"

// GRPCServer serves the standard gRPC health protocol. External checkers
// (load balancers, kubelet-style probes) watch the fleet service: SERVING
// while no instance has failed, NOT_SERVING otherwise.
type GRPCServer struct {
	addr   string
	server *grpc.Server
	health *health.Server
}

// NewGRPCServer creates the gRPC health endpoint
func NewGRPCServer(addr string) *GRPCServer {
	s := &GRPCServer{
		addr:   addr,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(FleetService, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Start begins serving in the background
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	logger := log.WithComponent("grpc")
	go func() {
		logger.Info().Str("addr", s.addr).Msg("gRPC health listening")
		if err := s.server.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server failed")
		}
	}()
	return nil
}

// SetFleetHealthy flips the fleet service between SERVING and NOT_SERVING
func (s *GRPCServer) SetFleetHealthy(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(FleetService, status)
}

// Stop drains and stops the server
func (s *GRPCServer) Stop() {
	s.server.GracefulStop()
}
