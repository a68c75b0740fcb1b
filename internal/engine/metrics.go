package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/metrics"
)

// metricsServer exposes Prometheus metrics and a /health endpoint, the way
// internal/metrics's teacher server did, rebuilt here against
// config.MetricsConfig and wired to a caller-supplied health predicate so
// /health reflects options.maxHealthcheckDuration staleness instead of
// always returning OK.
type metricsServer struct {
	cfg     config.MetricsConfig
	healthy func() bool
	server  *http.Server
}

func newMetricsServer(cfg config.MetricsConfig, healthy func() bool) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	s := &metricsServer{cfg: cfg, healthy: healthy}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if s.healthy != nil && !s.healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNHEALTHY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start starts the HTTP server and, like the teacher's metrics.Server,
// begins periodically refreshing process-level metrics (uptime, goroutine
// count, memory stats) for as long as ctx stays alive.
func (s *metricsServer) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	go s.updateSystemMetrics(ctx)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return
		}
	}()
}

func (s *metricsServer) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.UpdateSystemMetrics()
		case <-ctx.Done():
			return
		}
	}
}

func (s *metricsServer) Stop(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	return s.server.Shutdown(ctx)
}
