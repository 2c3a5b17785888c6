package transportgrpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/marketplace-auth/internal/transport/grpc/interceptors"
)

const (
	// AuthServiceName is the health service name reported alongside the overall "" status.
	AuthServiceName = "marketplace.auth"

	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 2 * time.Second
)

// DependencyCheck probes one backing store.
type DependencyCheck func(ctx context.Context) error

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
	// Checks drive the serving status of AuthServiceName.
	Checks        map[string]DependencyCheck
	ProbeInterval time.Duration
}

// Server is the gRPC endpoint of the service. It only carries the standard health and
// reflection services so that orchestrators can probe the process over gRPC.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	logger   *zap.Logger
	checks   map[string]DependencyCheck
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer wires the health and reflection services behind the tracing, metrics and logging interceptors.
func NewServer(deps ServerDependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: deps.Registerer})
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			grpcinterceptors.UnaryLogging(logger),
		),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(AuthServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	interval := deps.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	return &Server{
		grpc:     server,
		health:   healthServer,
		logger:   logger,
		checks:   deps.Checks,
		interval: interval,
		stop:     make(chan struct{}),
	}, nil
}

// Serve probes dependencies in the background and blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if len(s.checks) > 0 {
		go s.probeLoop()
	}
	return s.grpc.Serve(lis)
}

// Probe runs every dependency check once and updates the AuthServiceName status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("grpc health dependency failing", zap.String("dependency", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(AuthServiceName, status)
	return status
}

func (s *Server) probeLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(context.Background())
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// GracefulStop marks every service NOT_SERVING, then drains in-flight calls.
func (s *Server) GracefulStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.grpc.Stop()
	})
}
