// Package metrics exposes the bus's running counters as Prometheus
// gauges, polling the same Counters struct the HK telemetry reports
// from so the two surfaces never disagree.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/config"
)

// Metrics mirrors Bus.Counters as a set of Prometheus gauges, refreshed
// by Collect.
type Metrics struct {
	msgSendCount           prometheus.Gauge
	msgSendErrorCount      prometheus.Gauge
	noSubscribersCount     prometheus.Gauge
	msgLimitErrorCount     prometheus.Gauge
	pipeOverflowErrorCount prometheus.Gauge
	internalErrorCount     prometheus.Gauge
	commandCount           prometheus.Gauge
	commandErrorCount      prometheus.Gauge

	pipeDepth     *prometheus.GaugeVec
	pipePeakDepth *prometheus.GaugeVec
	pipeSendErrs  *prometheus.GaugeVec
}

// New registers one Metrics instance against reg. Production callers
// pass prometheus.DefaultRegisterer; tests pass a fresh
// prometheus.NewRegistry() so repeated calls don't collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{Namespace: "sbus", Name: name, Help: help})
	}
	return &Metrics{
		msgSendCount:           gauge("msg_send_count", "Messages successfully transmitted."),
		msgSendErrorCount:      gauge("msg_send_error_count", "Destination enqueues that failed for a reason other than a full queue."),
		noSubscribersCount:     gauge("no_subscribers_count", "Transmits with no live route."),
		msgLimitErrorCount:     gauge("msg_limit_error_count", "Destinations skipped at their msg_count_limit."),
		pipeOverflowErrorCount: gauge("pipe_overflow_error_count", "Enqueues rejected by a full pipe queue."),
		internalErrorCount:     gauge("internal_error_count", "Enqueue failures not attributable to a full queue."),
		commandCount:           gauge("command_count", "Admin commands processed successfully."),
		commandErrorCount:      gauge("command_error_count", "Admin commands rejected."),

		pipeDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbus", Name: "pipe_depth", Help: "Current queued message count per pipe.",
		}, []string{"pipe"}),
		pipePeakDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbus", Name: "pipe_peak_depth", Help: "Highest queued message count observed per pipe.",
		}, []string{"pipe"}),
		pipeSendErrs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sbus", Name: "pipe_send_errors", Help: "Failed enqueue attempts per pipe.",
		}, []string{"pipe"}),
	}
}

// Collect snapshots b's counters and per-pipe depths into the
// registered gauges. Safe to call repeatedly from a ticker.
func (m *Metrics) Collect(b *bus.Bus) {
	m.msgSendCount.Set(float64(b.Counters.MsgSendCount.Load()))
	m.msgSendErrorCount.Set(float64(b.Counters.MsgSendErrorCount.Load()))
	m.noSubscribersCount.Set(float64(b.Counters.NoSubscribersCount.Load()))
	m.msgLimitErrorCount.Set(float64(b.Counters.MsgLimitErrorCount.Load()))
	m.pipeOverflowErrorCount.Set(float64(b.Counters.PipeOverflowErrorCount.Load()))
	m.internalErrorCount.Set(float64(b.Counters.InternalErrorCount.Load()))
	m.commandCount.Set(float64(b.Counters.CommandCount.Load()))
	m.commandErrorCount.Set(float64(b.Counters.CommandErrorCount.Load()))

	for _, p := range b.Pipes.Snapshot() {
		m.pipeDepth.WithLabelValues(p.Name).Set(float64(p.CurrentDepth))
		m.pipePeakDepth.WithLabelValues(p.Name).Set(float64(p.PeakDepth))
		m.pipeSendErrs.WithLabelValues(p.Name).Set(float64(p.SendErrors))
	}
}

// Run polls b into m every interval until ctx is cancelled.
func (m *Metrics) Run(ctx context.Context, b *bus.Bus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(b)
		}
	}
}

// Serve starts an HTTP server exposing the default registry at
// cfg.Path until ctx is cancelled. A no-op if cfg.Enabled is false.
func Serve(ctx context.Context, cfg config.MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

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
