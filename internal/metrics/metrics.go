package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/pulsewatch/internal/repo"
)

const namespace = "pulsewatch"

var (
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probes run, partitioned by service type and result.",
		},
		[]string{"type", "result"},
	)

	probeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Probe latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	probeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_errors_total",
			Help:      "Probes that could not produce an outcome (config errors, panics, store failures).",
		},
		[]string{"kind"},
	)

	inflightProbes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_probes",
			Help:      "Probes currently running.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts attempted, partitioned by kind and delivery outcome.",
		},
		[]string{"kind", "outcome"},
	)

	deletedHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_deleted_hits_total",
			Help:      "Hits or keys removed from the store, partitioned by origin.",
		},
		[]string{"origin"},
	)

	fleetReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fleet_reloads_total",
			Help:      "Fleet file reloads, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches pulsewatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		probesTotal,
		probeLatencySeconds,
		probeErrorsTotal,
		inflightProbes,
		alertsTotal,
		deletedHitsTotal,
		fleetReloadsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveProbe(serviceType string, ok bool, latency time.Duration) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	probesTotal.WithLabelValues(serviceType, result).Inc()
	if latency < 0 {
		latency = 0
	}
	probeLatencySeconds.WithLabelValues(serviceType).Observe(latency.Seconds())
}

func ProbeError(kind string) { probeErrorsTotal.WithLabelValues(kind).Inc() }

func ProbeStarted()  { inflightProbes.Inc() }
func ProbeFinished() { inflightProbes.Dec() }

func ObserveAlert(kind string, delivered bool) {
	outcome := "sent"
	if !delivered {
		outcome = "failed"
	}
	alertsTotal.WithLabelValues(kind, outcome).Inc()
}

func FleetReload(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	fleetReloadsTotal.WithLabelValues(outcome).Inc()
}

// DeletionAuditor counts store deletions; combine it with repo.LogAuditor.
type DeletionAuditor struct{}

func (DeletionAuditor) Deletion(_ context.Context, ev repo.DeletionEvent) {
	deletedHitsTotal.WithLabelValues(ev.Origin).Add(float64(ev.Count))
}

var _ repo.Auditor = DeletionAuditor{}
