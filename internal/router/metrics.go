package router

import "github.com/prometheus/client_golang/prometheus"

var (
	routedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "router",
		Name:      "messages_routed_total",
		Help:      "Inbound messages applied, grouped by message name.",
	}, []string{"name"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "router",
		Name:      "messages_dropped_total",
		Help:      "Inbound messages ignored, grouped by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(routedCounter, droppedCounter)
}

func recordRouted(name string) {
	routedCounter.WithLabelValues(name).Inc()
}

func recordDropped(reason string) {
	droppedCounter.WithLabelValues(reason).Inc()
}
