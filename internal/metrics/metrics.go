package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "registrations_total",
			Help:      "Register requests by outcome.",
		}, []string{"result"},
	)
	cancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "cancels_total",
			Help:      "Cancel requests by outcome.",
		}, []string{"result"},
	)
	waits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "waits_total",
			Help:      "Wait-for-next-period calls by outcome.",
		}, []string{"result"},
	)
	wakeups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "wakeups_total",
			Help:      "Period boundaries delivered to live tasks.",
		},
	)
	overruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "overruns_total",
			Help:      "Period boundaries skipped because a firing ran late.",
		},
	)
	retirements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "retirements_total",
			Help:      "Monitored tasks retired, by reason.",
		}, []string{"reason"},
	)
	active = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "active",
			Help:      "Currently monitored tasks.",
		},
	)
	wakeLateness = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rtmon",
			Subsystem: "task",
			Name:      "wake_lateness_seconds",
			Help:      "Delay between a period deadline and the wake-up actually delivered.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{registrations, cancels, waits, wakeups, overruns, retirements, active, wakeLateness}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register succeeds.

func IncRegistration(result string) {
	if regOK.Load() {
		registrations.WithLabelValues(result).Inc()
	}
}

func IncCancel(result string) {
	if regOK.Load() {
		cancels.WithLabelValues(result).Inc()
	}
}

func IncWait(result string) {
	if regOK.Load() {
		waits.WithLabelValues(result).Inc()
	}
}

// ObserveWakeup records a delivered boundary and how late it was.
func ObserveWakeup(lateSeconds float64) {
	if regOK.Load() {
		wakeups.Inc()
		if lateSeconds < 0 {
			lateSeconds = 0
		}
		wakeLateness.Observe(lateSeconds)
	}
}

func AddOverruns(n uint64) {
	if regOK.Load() && n > 0 {
		overruns.Add(float64(n))
	}
}

func IncRetirement(reason string) {
	if regOK.Load() {
		retirements.WithLabelValues(reason).Inc()
	}
}

func SetActive(n int) {
	if regOK.Load() {
		active.Set(float64(n))
	}
}
