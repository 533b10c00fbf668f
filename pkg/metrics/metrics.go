// Package metrics defines the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every instrument the moderation flows touch. Instruments are
// safe to use from any goroutine.
type Set struct {
	ChecksStarted   prometheus.Counter
	ChecksEnded     *prometheus.CounterVec
	Bans            *prometheus.CounterVec
	ActiveChecks    prometheus.Gauge
	PendingChecks   prometheus.Gauge
	FrozenPlayers   prometheus.Gauge
	AfkTransitions  *prometheus.CounterVec
	EventsIngested  *prometheus.CounterVec
	EventsCancelled *prometheus.CounterVec
}

// NewSet creates and registers all instruments on the given registerer.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		ChecksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cheatercheck_checks_started_total",
			Help: "Number of cheating checks started.",
		}),
		ChecksEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cheatercheck_checks_ended_total",
			Help: "Number of cheating checks ended, by verdict.",
		}, []string{"verdict"}),
		Bans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cheatercheck_bans_total",
			Help: "Number of ban commands issued, by reason.",
		}, []string{"reason"}),
		ActiveChecks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cheatercheck_active_checks",
			Help: "Checks currently in progress.",
		}),
		PendingChecks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cheatercheck_pending_afk_checks",
			Help: "Checks waiting for an AFK target to return.",
		}),
		FrozenPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cheatercheck_frozen_players",
			Help: "Players currently frozen.",
		}),
		AfkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cheatercheck_afk_transitions_total",
			Help: "AFK state transitions, by direction.",
		}, []string{"state"}),
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cheatercheck_events_ingested_total",
			Help: "Game events received from the host, by type.",
		}, []string{"type"}),
		EventsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cheatercheck_events_cancelled_total",
			Help: "Game events cancelled by moderation rules, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		s.ChecksStarted, s.ChecksEnded, s.Bans,
		s.ActiveChecks, s.PendingChecks, s.FrozenPlayers,
		s.AfkTransitions, s.EventsIngested, s.EventsCancelled,
	)
	return s
}

// NewTestSet returns a Set on a throwaway registry.
func NewTestSet() *Set {
	return NewSet(prometheus.NewRegistry())
}
