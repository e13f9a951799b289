package device

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/INLOpen/zonefs/config"
)

// MetricsServer exposes the device's Prometheus metrics, an expvar
// endpoint, pprof, and a live statsviz runtime chart over HTTP, for
// local operation of cmd/zonectl and any embedder that wants the same.
type MetricsServer struct {
	server  *http.Server
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
}

// NewMetricsServer builds a MetricsServer per cfg. The /debug/pprof
// routes are always registered; the others only when
// cfg.MetricsEnabled/MonitorUIEnabled request them.
func NewMetricsServer(cfg config.DebugConfig, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "MetricsServer")
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/vars", expvar.Handler())
		logger.Info("metrics endpoints enabled", "prometheus", "/metrics", "expvar", "/vars")
	}
	if cfg.MonitorUIEnabled {
		if err := statsviz.Register(mux, statsviz.Root("/viz"), statsviz.SendFrequency(250*time.Millisecond)); err != nil {
			logger.Warn("failed to register statsviz", "error", err)
		} else {
			logger.Info("runtime monitor UI available at /viz")
		}
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = ":8099"
	}
	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving and blocks until Stop is called or the server
// fails.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("zonefs: metrics server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *MetricsServer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("metrics server shutdown failed", "error", err)
	}
}
