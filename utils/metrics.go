package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MilestonesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestones_awarded_total",
			Help: "Milestones newly awarded, by code",
		},
		[]string{"code"},
	)
	DefinitionsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "milestone_definitions_skipped_total",
			Help: "Milestone definitions rejected while loading the rule engine",
		},
	)
	StreakRecalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_recalculations_total",
			Help: "Streaks rebuilt from full history after a retroactive edit",
		},
	)
	ScoreCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_score_cache_total",
			Help: "Identity score cache lookups by result",
		},
		[]string{"result"},
	)
	PushesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Push notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(MilestonesAwarded, DefinitionsSkipped, StreakRecalculations, ScoreCache, PushesSent)
}
