// Package metrics exposes intake counters in Prometheus format.
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

	"github.com/rescale/rescale-intake/internal/logging"
)

// Outcome is the terminal state of one file handed to a widget.
type Outcome string

const (
	OutcomeInvalid    Outcome = "invalid"     // Rejected by the validator
	OutcomeReadFailed Outcome = "read_failed" // Bytes could not be read
	OutcomeDuplicate  Outcome = "duplicate"   // Content id already attached
	OutcomeVetoed     Outcome = "vetoed"      // Refused by the pre-upload gate
	OutcomeAccepted   Outcome = "accepted"    // Uploaded and attached
	OutcomeFailed     Outcome = "failed"      // Upload rejected or transport error
	OutcomeStale      Outcome = "stale"       // Completed after the widget was reset
)

// Recorder receives intake measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordOutcome(o Outcome)
	ObserveUpload(status int, size int64, d time.Duration)
	RecordDeletion(ids int, err error)
}

// NoOp discards every measurement.
type NoOp struct{}

func (NoOp) RecordOutcome(o Outcome)                               {}
func (NoOp) ObserveUpload(status int, size int64, d time.Duration) {}
func (NoOp) RecordDeletion(ids int, err error)                     {}

// OrNoOp returns r, or NoOp when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NoOp{}
	}
	return r
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	registry *prometheus.Registry

	outcomes       *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    prometheus.Counter
	deletedIDs     *prometheus.CounterVec
}

// NewCollector creates a collector registered on its own registry, so
// several collectors can coexist in one process (tests, embedded widgets).
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "files_total",
			Help:      "Files handed to the widget, by outcome",
		}, []string{"outcome"}),
		uploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "upload_duration_seconds",
			Help:      "Duration of upload requests, by response status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "upload_bytes_total",
			Help:      "File bytes sent in upload requests",
		}),
		deletedIDs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "deletion_ids_total",
			Help:      "Content ids sent in deletion notifications, by result",
		}, []string{"result"}),
	}
}

// RecordOutcome counts one file outcome.
func (c *Collector) RecordOutcome(o Outcome) {
	c.outcomes.WithLabelValues(string(o)).Inc()
}

// ObserveUpload records one finished upload request. A zero status means the
// request never got a response.
func (c *Collector) ObserveUpload(status int, size int64, d time.Duration) {
	label := "error"
	if status > 0 {
		label = fmt.Sprintf("%d", status)
	}
	c.uploadDuration.WithLabelValues(label).Observe(d.Seconds())
	c.uploadBytes.Add(float64(size))
}

// RecordDeletion counts ids delivered (or not) to the deletion backend.
func (c *Collector) RecordDeletion(ids int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.deletedIDs.WithLabelValues(result).Add(float64(ids))
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	logger = logging.OrNop(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	}
	return nil
}
