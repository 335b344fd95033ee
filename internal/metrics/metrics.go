// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChallengesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_challenges_created_total",
		Help: "Challenges created, by game.",
	}, []string{"game"})

	ResultsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_results_recorded_total",
		Help: "Result submissions that changed a challenge, by game and role.",
	}, []string{"game", "role"})

	NotificationsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_notifications_fired_total",
		Help: "Notification triggers that produced a new inbox message.",
	}, []string{"trigger"})

	AckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duels_ack_write_failures_total",
		Help: "Acknowledgment flag writes that failed and will re-fire.",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_store_errors_total",
		Help: "Remote store failures, by operation.",
	}, []string{"op"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_realtime_events_total",
		Help: "Push channel events that matched a session, by event kind.",
	}, []string{"event"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duels_refreshes_total",
		Help: "Challenge refetches, by outcome (ok, error, shared, cancelled).",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duels_ws_sessions",
		Help: "Connected websocket sessions.",
	})
)
