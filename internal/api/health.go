package api

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PlaybackService is the service name reported alongside the overall ("")
// status.
const PlaybackService = "droneview.Playback"

const healthStopGrace = time.Second

// HealthServer serves grpc.health.v1 so orchestrators can probe the
// replay server without speaking HTTP.
type HealthServer struct {
	addr     string
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewHealthServer returns a stopped server for addr that reports
// NOT_SERVING until SetServing(true).
func NewHealthServer(addr string) *HealthServer {
	h := &HealthServer{
		addr:   addr,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.health.SetServingStatus(PlaybackService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(h.server, h.health)
	return h
}

// Start binds the listener and serves in the background.
func (h *HealthServer) Start() error {
	if h.running.Load() {
		return fmt.Errorf("health server already running")
	}
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.listener = lis
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		logf("gRPC health listening on %s", lis.Addr())
		if err := h.server.Serve(lis); err != nil && h.running.Load() {
			logf("gRPC health server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (h *HealthServer) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// SetServing flips both reported statuses.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(PlaybackService, status)
}

// Stop reports NOT_SERVING to watchers and shuts the server down.
func (h *HealthServer) Stop() {
	if !h.running.Load() {
		return
	}
	h.health.Shutdown()
	h.running.Store(false)

	// Open Watch streams never finish on their own.
	done := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(healthStopGrace):
		h.server.Stop()
	}
	h.wg.Wait()
	logf("gRPC health server stopped")
}
