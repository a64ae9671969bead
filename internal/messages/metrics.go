package messages

import "github.com/prometheus/client_golang/prometheus"

var busDropCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "peloton_bridge",
	Subsystem: "bus",
	Name:      "messages_dropped_total",
	Help:      "Number of outbound messages dropped because a subscriber was not keeping up.",
})

func init() {
	prometheus.MustRegister(busDropCounter)
}

func recordBusDrop() {
	busDropCounter.Inc()
}
