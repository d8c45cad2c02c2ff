package probe

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/reqscope/server/internal/auth"
)

// Service is the health service name reported for the request dispatcher.
const Service = "reqscope.Dispatcher"

// Probe owns the gRPC server and its health state.
type Probe struct {
	srv    *grpc.Server
	health *health.Server
}

// New builds a Probe whose calls are guarded by the API key settings.
// It starts out NOT_SERVING.
func New(mode, header, key string) *Probe {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(mode, header, key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(mode, header, key)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	p := &Probe{srv: srv, health: hs}
	p.SetServing(false)
	return p
}

// SetServing flips both reported services.
func (p *Probe) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(Service, st)
	slog.Debug("probe: status changed", "status", st.String())
}

// Serve blocks accepting connections on lis until Stop is called.
func (p *Probe) Serve(lis net.Listener) error {
	return p.srv.Serve(lis)
}

// Stop reports NOT_SERVING to open watchers and drains in-flight calls.
func (p *Probe) Stop() {
	p.health.Shutdown()
	p.srv.GracefulStop()
}
