package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "outbox",
		Name:      "messages_delivered_total",
		Help:      "Number of outbound messages successfully written to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "outbox",
		Name:      "messages_failed_total",
		Help:      "Number of outbound messages that could not be encoded or written.",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "outbox",
		Name:      "messages_dropped_total",
		Help:      "Number of outbound messages discarded because the buffer was full.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "peloton_bridge",
		Subsystem: "outbox",
		Name:      "queue_depth",
		Help:      "Messages waiting in the outbox buffer.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "peloton_bridge",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent encoding and writing outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, droppedCounter, queueDepth, batchDuration)
}
