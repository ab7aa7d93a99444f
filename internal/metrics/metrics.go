// Package metrics records cycle outcomes in a Prometheus registry that can be
// scraped in loop mode or pushed to a Pushgateway after one-shot runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/rewired-gh/oidelta/internal/logger"
)

const namespace = "oidelta"

// Cycle results.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Recorder owns a registry and the collectors registered in it. A nil
// Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	rows            *prometheus.CounterVec
	messages        *prometheus.CounterVec
	storeMigrations prometheus.Counter
	saveFailures    prometheus.Counter
	cycleDuration   prometheus.Histogram
	lastSuccess     prometheus.Gauge
	spot            prometheus.Gauge
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Fetch cycles by result.",
		}, []string{"result"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Strike rows by outcome.",
		}, []string{"outcome"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Report messages by option side and delivery result.",
		}, []string{"side", "result"}),
		storeMigrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_migrations_total",
			Help:      "Snapshots rewritten in canonical form on load.",
		}),
		saveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_save_failures_total",
			Help:      "Snapshot writes that failed.",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
		spot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spot_price",
			Help:      "Underlying value seen in the last chain.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveCycle records a finished cycle.
func (r *Recorder) ObserveCycle(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(result).Inc()
	if result == ResultOK {
		r.cycleDuration.Observe(d.Seconds())
		r.lastSuccess.SetToCurrentTime()
	}
}

// ObserveRows records computed and skipped strike rows.
func (r *Recorder) ObserveRows(computed, skipped int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues("computed").Add(float64(computed))
	r.rows.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveSpot records the underlying price.
func (r *Recorder) ObserveSpot(spot float64) {
	if r == nil || spot <= 0 {
		return
	}
	r.spot.Set(spot)
}

// ObserveMessage records one report delivery attempt.
func (r *Recorder) ObserveMessage(side string, err error) {
	if r == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	r.messages.WithLabelValues(side, result).Inc()
}

// ObserveMigration records a snapshot migration.
func (r *Recorder) ObserveMigration() {
	if r == nil {
		return
	}
	r.storeMigrations.Inc()
}

// ObserveSaveFailure records a failed snapshot write.
func (r *Recorder) ObserveSaveFailure() {
	if r == nil {
		return
	}
	r.saveFailures.Inc()
}

// Push sends the registry to a Pushgateway under the given job name.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if r == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}
