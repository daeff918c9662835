// Package metrics exposes Prometheus instrumentation for upstream backend calls
// and enrichment outcomes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetter_backend_requests_total",
			Help: "Total number of requests sent to upstream backends",
		},
		[]string{"backend", "outcome"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vetter_backend_request_duration_seconds",
			Help:    "Duration of upstream backend requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	ScrapeBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetter_scrape_bytes_total",
			Help: "Total bytes downloaded through scrape backends",
		},
		[]string{"backend"},
	)

	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetter_enrichment_signals_total",
			Help: "Enrichment signals produced per candidate, by outcome",
		},
		[]string{"signal", "outcome"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetter_proxy_failures_total",
			Help: "Total number of proxy failures during direct fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordCall updates the backend counters for one upstream call.
func RecordCall(backend string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	BackendRequestsTotal.WithLabelValues(backend, outcome).Inc()
	BackendDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// RecordBytes adds downloaded page bytes for a scrape backend.
func RecordBytes(backend string, n int) {
	ScrapeBytesTotal.WithLabelValues(backend).Add(float64(n))
}

// RecordSignal counts one enrichment signal outcome.
func RecordSignal(signal string, failed bool) {
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeError
	}
	SignalsTotal.WithLabelValues(signal, outcome).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
