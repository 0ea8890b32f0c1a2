// Package healthgrpc serves and queries the standard grpc.health.v1 service.
package healthgrpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ChatService is the service name reported alongside the overall "" entry.
const ChatService = "flightassistant.Chat"

// Pinger is the dependency probed by Watch.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes process health over gRPC.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewServer creates a health server reporting SERVING for "" and ChatService.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, logger: logger}
	s.SetServing(true)
	return s
}

// SetServing updates both service entries.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ChatService, status)
}

// Watch pings p every interval and flips ChatService between SERVING and
// NOT_SERVING. It returns when ctx is canceled.
func (s *Server) Watch(ctx context.Context, p Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := p.Ping(pingCtx)
			cancel()

			if ok := err == nil; ok != serving {
				serving = ok
				if ok {
					s.logger.Info("Checkpoint store reachable again")
				} else {
					s.logger.Warn("Checkpoint store unreachable", "error", err)
				}
				s.SetServing(ok)
			}
		}
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
