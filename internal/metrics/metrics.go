// Package metrics exposes Prometheus instrumentation for runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firstlink_queries_total",
			Help: "Total number of queries searched",
		},
		[]string{"engine", "outcome"},
	)

	QueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firstlink_query_failures_total",
			Help: "Queries that produced no URL, by failure kind",
		},
		[]string{"engine", "kind"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firstlink_query_duration_seconds",
			Help:    "Duration of a single search in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	QueriesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firstlink_queries_pending",
			Help: "Queries loaded but not yet searched in the current run",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firstlink_runs_total",
			Help: "Completed runs by final status",
		},
		[]string{"engine", "status"},
	)
)

// RecordQuery updates the per-query metrics for one result.
func RecordQuery(engine string, res *storage.Result) {
	if res == nil {
		return
	}

	outcome := "found"
	if !res.Found() {
		outcome = "not_found"
		QueryFailures.WithLabelValues(engine, res.Kind).Inc()
	}

	QueriesTotal.WithLabelValues(engine, outcome).Inc()
	QueryDuration.WithLabelValues(engine).Observe(res.Duration.Seconds())
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve exposes /metrics on addr until ctx is done, then shuts the server
// down gracefully.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("metrics server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}
