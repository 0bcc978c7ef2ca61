package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the dispatcher-wide counters/gauges of SPEC_FULL.md's
// DOMAIN STACK section, registered as plain prometheus.Collectors (the
// host process owns the HTTP surface, if any).
type Metrics struct {
	FramesForwardedTotal        prometheus.Counter
	FramesDroppedSaturationTotal *prometheus.CounterVec
	EndpointsRegistered         prometheus.Gauge
}

// NewMetrics builds and, if reg is non-nil, registers a Metrics set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesForwardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcfleet_bus",
			Subsystem: "dispatcher",
			Name:      "frames_forwarded_total",
			Help:      "Frames copied from a source endpoint's write ring into a peer's read ring.",
		}),
		FramesDroppedSaturationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcfleet_bus",
			Subsystem: "dispatcher",
			Name:      "frames_dropped_slot_saturation_total",
			Help:      "Frames dropped because a peer's read ring had no free slot, by peer endpoint key.",
		}, []string{"endpoint_key"}),
		EndpointsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcfleet_bus",
			Subsystem: "dispatcher",
			Name:      "endpoints_registered",
			Help:      "Endpoints currently holding an allocated ring pair.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesForwardedTotal, m.FramesDroppedSaturationTotal, m.EndpointsRegistered)
	}
	return m
}
