// Package grpcserver runs the gRPC health endpoint probed by orchestrators.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service; "" reports the same status.
const ServiceName = "clinsight.v1.API"

// Pinger reports whether a backend dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 and keeps its status in step with
// periodic pings of the database.
type HealthServer struct {
	srv      *grpc.Server
	hs       *health.Server
	db       Pinger
	interval time.Duration
	log      *zap.Logger
}

// NewHealth builds the listener. interval defaults to 10s; reflect enables
// server reflection for grpcurl.
func NewHealth(db Pinger, interval time.Duration, reflect bool, log *zap.Logger) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if reflect {
		reflection.Register(srv)
	}
	return &HealthServer{srv: srv, hs: hs, db: db, interval: interval, log: log}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.probe(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- h.srv.Serve(lis) }()

	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.stop()
			return nil
		case err := <-errCh:
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case <-t.C:
			h.probe(ctx)
		}
	}
}

func (h *HealthServer) probe(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if h.db != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.db.Ping(pctx)
		cancel()
		if err != nil {
			h.log.Warn("health probe failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// stop drains in-flight calls for up to 5s, then closes connections.
func (h *HealthServer) stop() {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.srv.Stop()
	}
}
