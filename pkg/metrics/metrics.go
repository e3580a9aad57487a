// Package metrics holds the daemon's Prometheus collectors and the optional
// HTTP endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubiojr/theme-switcher/pkg/log"
)

const namespace = "theme_switcher"

var (
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dispatched_total",
		Help:      "Theme change events handed to the dispatcher.",
	}, []string{"theme"})
	ConsumerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_failures_total",
		Help:      "Consumer invocations that failed or panicked.",
	}, []string{"consumer"})
	ScriptRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "script_runs_total",
		Help:      "Script invocations by kind and outcome.",
	}, []string{"kind", "outcome"})
	IPCConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ipc_connections_active",
		Help:      "Live IPC client connections.",
	})
	IPCBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ipc_broadcasts_total",
		Help:      "Themes published to IPC subscribers.",
	})
	IPCLagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ipc_lagged_events_total",
		Help:      "Events skipped for IPC subscribers that fell behind.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	logger := log.ForService("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
