// Package observability exposes application metrics over a Prometheus
// compatible HTTP endpoint.
package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelvision/sentinel-go/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves the metrics registry over HTTP.
type Endpoint struct {
	server        *http.Server
	registry      *prometheus.Registry
	ListenAddress string
	logger        *slog.Logger
}

// NewEndpoint creates a telemetry endpoint for the given registry.
func NewEndpoint(listenAddress string, registry *prometheus.Registry) *Endpoint {
	logger := logging.ForService("telemetry")
	if logger == nil {
		logger = slog.Default().With("service", "telemetry")
	}
	return &Endpoint{
		registry:      registry,
		ListenAddress: listenAddress,
		logger:        logger,
	}
}

// Start runs the HTTP server in a goroutine and shuts it down when the
// quit channel closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:              e.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.logger.Info("telemetry endpoint starting", "address", e.ListenAddress)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("telemetry server failed", "address", e.ListenAddress, "error", err)
		}
	}()

	go func() {
		<-quitChan
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Warn("telemetry server shutdown failed", "error", err)
		}
	}()
}
