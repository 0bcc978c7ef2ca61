package bus

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the per-endpoint counters this module exposes to the
// host process, mirroring the way the teacher and ClusterCockpit both
// register plain prometheus.Collectors rather than starting their own
// HTTP handler (serving an admin HTTP surface is out of this module's
// scope).
type Metrics struct {
	CallbackErrorsTotal prometheus.Counter
	ResponsesSentTotal  prometheus.Counter
	FramesReceivedTotal prometheus.Counter
	FramesDroppedTotal  *prometheus.CounterVec
}

// NewMetrics builds a Metrics set labeled with the endpoint's key, and
// registers them on reg (pass a fresh registry, or nil to skip
// registration and use the collectors unregistered, e.g. in tests).
func NewMetrics(reg prometheus.Registerer, endpointKey string) *Metrics {
	m := &Metrics{
		CallbackErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcfleet_bus",
			Name:        "callback_errors_total",
			Help:        "Callbacks that panicked or returned an error while handling a dispatched event.",
			ConstLabels: prometheus.Labels{"endpoint": endpointKey},
		}),
		ResponsesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcfleet_bus",
			Name:        "responses_sent_total",
			Help:        "Response events unicast back to a request's source endpoint.",
			ConstLabels: prometheus.Labels{"endpoint": endpointKey},
		}),
		FramesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mcfleet_bus",
			Name:        "frames_received_total",
			Help:        "Frames popped off this endpoint's read ring.",
			ConstLabels: prometheus.Labels{"endpoint": endpointKey},
		}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mcfleet_bus",
			Name:        "frames_dropped_total",
			Help:        "Frames dropped by this endpoint's listener, by reason.",
			ConstLabels: prometheus.Labels{"endpoint": endpointKey},
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.CallbackErrorsTotal, m.ResponsesSentTotal, m.FramesReceivedTotal, m.FramesDroppedTotal)
	}
	return m
}
