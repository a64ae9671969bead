package orchestrator

import "github.com/prometheus/client_golang/prometheus"

const (
	loginSucceeded = "succeeded"
	loginReused    = "reused"
	loginFailed    = "failed"

	fetchSucceeded = "succeeded"
	fetchFailed    = "failed"
)

var (
	loginCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "orchestrator",
		Name:      "logins_total",
		Help:      "Login attempts grouped by result (succeeded, reused, failed).",
	}, []string{"result"})

	fetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "orchestrator",
		Name:      "fetches_total",
		Help:      "Upstream data fetches grouped by kind and result.",
	}, []string{"kind", "result"})

	tickCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "peloton_bridge",
		Subsystem: "orchestrator",
		Name:      "refresh_ticks_total",
		Help:      "Number of refresh ticks fired across all instances.",
	})

	instanceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "peloton_bridge",
		Subsystem: "orchestrator",
		Name:      "instances",
		Help:      "Number of configured widget instances.",
	})
)

func init() {
	prometheus.MustRegister(loginCounter, fetchCounter, tickCounter, instanceGauge)
}

func recordLogin(result string) {
	loginCounter.WithLabelValues(result).Inc()
}

func recordFetch(op Operation, result string) {
	fetchCounter.WithLabelValues(string(op), result).Inc()
}

func recordTick() {
	tickCounter.Inc()
}

func setInstanceCount(n int) {
	instanceGauge.Set(float64(n))
}
