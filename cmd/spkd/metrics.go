package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spkthread"
)

const metricsShutdownTimeout = 3 * time.Second

// registerMetrics exposes the driver thread metrics on reg.
func registerMetrics(reg prometheus.Registerer, dt *spkthread.DriverThread) error {
	m := dt.GetMetrics()
	labels := prometheus.Labels{"driver": dt.DriverName()}

	counter := func(name, help string, value func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "spkd",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value()) })
	}

	gauge := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "spkd",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, value)
	}

	collectors := []prometheus.Collector{
		counter("commands_sent_total", "Commands accepted by the driver thread.", m.CommandSendCount.Load),
		counter("command_errors_total", "Commands that failed before reaching the driver thread.", m.CommandErrCount.Load),
		counter("command_timeouts_total", "Commands whose response timed out.", m.CommandTimeoutCount.Load),
		counter("late_responses_total", "Responses dropped because their caller gave up.", m.LateResponseCount.Load),
		counter("notifications_sent_total", "Notifications queued for the main loop.", m.NotificationSendCount.Load),
		counter("notifications_dropped_total", "Notifications dropped by the driver thread.", m.NotificationDropCount.Load),
		counter("idle_ticks_total", "Idle intervals of the driver thread.", m.IdleTickCount.Load),
		gauge("commands_inflight", "Commands waiting for a response.", func() float64 {
			return float64(m.CommandInflightCount.Load())
		}),
		gauge("driver_thread_state", "Lifecycle state of the driver thread (0 constructing .. 4 finished).", func() float64 {
			return float64(dt.State())
		}),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// serveMetrics serves reg on bind until ctx is done.
func serveMetrics(ctx context.Context, bind string, reg *prometheus.Registry, l logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn("metrics server shutdown failed", "error", err)
		}
	})
	defer stop()

	l.Info("serving metrics", "bind", bind)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("metrics server failed", "bind", bind, "error", err)
	}
}
