// Package metrics exposes Prometheus instruments for the translation pipeline.
// A nil *Registry is valid and records nothing, so callers never need to
// guard instrumentation behind configuration checks.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/patentrag/pkg/mid"
)

const namespace = "patentrag"

// StageBuckets are histogram buckets (seconds) for per-state section timings.
var StageBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Registry holds the pipeline's instruments on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	sections      *prometheus.CounterVec
	confidence    prometheus.Histogram
	degraded      *prometheus.CounterVec
	llmAttempts   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
	indexed       prometheus.Counter
}

// New creates a Registry with process and Go runtime collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		sections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Sections reaching a terminal state.",
		}, []string{"state"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_confidence",
			Help:      "Confidence score of scored sections.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Sections translated with reduced context, by reason.",
		}, []string{"reason"}),
		llmAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Model invocation attempts by outcome.",
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per section state.",
			Buckets:   StageBuckets,
		}, []string{"stage"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		indexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_points_indexed_total",
			Help:      "Translation examples written to the vector index.",
		}),
	}
}

// Section counts a section reaching a terminal state.
func (r *Registry) Section(state string) {
	if r == nil {
		return
	}
	r.sections.WithLabelValues(state).Inc()
}

// Confidence records the score of a scored section.
func (r *Registry) Confidence(v float64) {
	if r == nil {
		return
	}
	r.confidence.Observe(v)
}

// Degraded counts one degradation reason.
func (r *Registry) Degraded(reason string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(reason).Inc()
}

// LLMAttempt counts a model call with outcome "ok", "retry" or "fail".
func (r *Registry) LLMAttempt(outcome string) {
	if r == nil {
		return
	}
	r.llmAttempts.WithLabelValues(outcome).Inc()
}

// StageSince observes the time elapsed since start for a pipeline stage.
func (r *Registry) StageSince(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// BreakerState sets the gauge for a named breaker.
func (r *Registry) BreakerState(name string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

// Indexed counts examples written to the index.
func (r *Registry) Indexed(n int) {
	if r == nil {
		return
	}
	r.indexed.Add(float64(n))
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an HTTP handler serving /metrics and /healthz.
func (r *Registry) Handler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mid.Chain(mux, mid.Recover(logger), mid.Logger(logger))
}

// Serve runs the metrics listener until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
