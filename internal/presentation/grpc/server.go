package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/peacemap/riskengine/pkg/auth"
	"github.com/peacemap/riskengine/pkg/tlsutil"
)

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Address     string
	TLSCertFile string
	TLSKeyFile  string
	Reflection  bool
}

// Server wraps the gRPC server with the risk service handlers.
type Server struct {
	address    string
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

// AuthPolicy is the role policy for RiskService. Training requires an admin,
// acknowledging an alert requires an analyst, everything else a viewer.
func AuthPolicy() auth.Policy {
	return auth.Policy{
		MinRole: map[string]string{
			FullMethod("TrainAnomalyDetector"): auth.RoleAdmin,
			FullMethod("AcknowledgeAlert"):     auth.RoleAnalyst,
		},
		Default: auth.RoleViewer,
		Skip: []string{
			"/grpc.health.v1.Health/Check",
			"/grpc.health.v1.Health/Watch",
		},
	}
}

// NewServer creates a gRPC server for handler. A nil validator disables
// authentication.
func NewServer(handler RiskServiceServer, cfg ServerConfig, validator auth.TokenValidator, logger *slog.Logger) (*Server, error) {
	var serverOpts []grpc.ServerOption
	if validator != nil {
		serverOpts = append(serverOpts, grpc.UnaryInterceptor(auth.UnaryAuthInterceptor(validator, AuthPolicy())))
	} else {
		logger.Warn("gRPC authentication disabled")
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := tlsutil.ServerTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load gRPC TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
		logger.Info("gRPC TLS enabled", slog.String("cert", cfg.TLSCertFile))
	} else {
		logger.Info("gRPC TLS not configured, running without TLS")
	}

	grpcServer := grpc.NewServer(serverOpts...)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	RegisterRiskServiceServer(grpcServer, handler)

	if cfg.Reflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		address:    cfg.Address,
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
	}, nil
}

// SetServing flips the health status reported for RiskService.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("gRPC server starting", slog.String("address", listener.Addr().String()))
	return s.grpcServer.Serve(listener)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.logger.Info("gRPC server shutting down")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
