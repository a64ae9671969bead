package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/pelotonbridge/internal/messages"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of inbound commands handed to the router and committed.",
	}, []string{"topic", "name"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic and message name.",
	}, []string{"topic", "name"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "consumer",
		Name:      "messages_dropped_total",
		Help:      "Number of inbound commands the router ignored, per topic.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peloton_bridge",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, droppedCounter, decodeErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, messages.Base(msg.Name)).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, messages.Base(msg.Name)).Inc()
}

func recordDropped(msg Message) {
	droppedCounter.WithLabelValues(msg.Topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
