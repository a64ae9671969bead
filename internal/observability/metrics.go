package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	profileFetchedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "peloton_bridge",
		Subsystem: "upstream",
		Name:      "last_profile_fetched_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful profile fetch across all instances.",
	})
	snapshotArchivedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "peloton_bridge",
		Subsystem: "archive",
		Name:      "last_snapshot_archived_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout count snapshot written to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(profileFetchedGauge, snapshotArchivedGauge)
}

// RecordProfileFetched updates the profile freshness watermark.
func RecordProfileFetched(ts time.Time) {
	if ts.IsZero() {
		return
	}
	profileFetchedGauge.Set(float64(ts.Unix()))
}

// RecordSnapshotArchived updates the archive watermark gauge.
func RecordSnapshotArchived(ts time.Time) {
	if ts.IsZero() {
		return
	}
	snapshotArchivedGauge.Set(float64(ts.Unix()))
}
