package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Event ingestion
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmzstatus_events_total",
			Help: "Activity events ingested by the tracker",
		},
		[]string{"kind", "outcome"},
	)

	// Persistence
	PersistenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmzstatus_persistence_errors_total",
			Help: "Failed reads and writes against the activity store",
		},
		[]string{"op", "table"},
	)

	// Status board
	StatusRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmzstatus_status_renders_total",
			Help: "Status board renders pushed to Discord",
		},
		[]string{"trigger"},
	)

	StatusPushErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dmzstatus_status_push_errors_total",
			Help: "Failed status board pushes",
		},
	)

	WatchedMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmzstatus_watched_members",
			Help: "Members in the watched set",
		},
	)

	OpenVoiceSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmzstatus_open_voice_sessions",
			Help: "Watched members currently in a tracked voice channel",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		PersistenceErrorsTotal,
		StatusRendersTotal,
		StatusPushErrorsTotal,
		WatchedMembers,
		OpenVoiceSessions,
	)
}
