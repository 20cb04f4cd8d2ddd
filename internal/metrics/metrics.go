// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultError    = "error"
	ResultDropped  = "dropped"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	grants           *prometheus.CounterVec
	xpGranted        prometheus.Counter
	levelUps         prometheus.Counter
	badgesAwarded    prometheus.Counter
	badgeErrors      prometheus.Counter
	sideEffectErrors *prometheus.CounterVec
	rulesSkipped     *prometheus.CounterVec
	leaderboardCache *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelup_xp_grants_total",
			Help: "XP grant attempts by result.",
		}, []string{"result"}),
		xpGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelup_xp_granted_total",
			Help: "Total XP committed to the ledger.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelup_level_ups_total",
			Help: "Grants that raised a member's level.",
		}),
		badgesAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelup_badges_awarded_total",
			Help: "Badges newly awarded to members.",
		}),
		badgeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelup_badge_evaluation_errors_total",
			Help: "Badge definitions that failed to evaluate.",
		}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelup_grant_side_effect_errors_total",
			Help: "Post-commit grant steps that failed, by step.",
		}, []string{"step"}),
		rulesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelup_rules_skipped_total",
			Help: "XP rules that did not fire for an event, by reason.",
		}, []string{"reason"}),
		leaderboardCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelup_leaderboard_cache_total",
			Help: "Leaderboard cache lookups by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelup_notifications_total",
			Help: "Notification deliveries by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.grants,
		m.xpGranted,
		m.levelUps,
		m.badgesAwarded,
		m.badgeErrors,
		m.sideEffectErrors,
		m.rulesSkipped,
		m.leaderboardCache,
		m.notifications,
	)
	return m
}

// GrantResult counts a grant attempt.
func (m *Metrics) GrantResult(result string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(result).Inc()
}

// Granted records committed XP and whether it raised the level.
func (m *Metrics) Granted(amount int64, leveledUp bool) {
	if m == nil {
		return
	}
	m.xpGranted.Add(float64(amount))
	if leveledUp {
		m.levelUps.Inc()
	}
}

// BadgesAwarded counts newly awarded badges.
func (m *Metrics) BadgesAwarded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.badgesAwarded.Add(float64(n))
}

// BadgeEvaluationError counts a badge that failed to evaluate.
func (m *Metrics) BadgeEvaluationError() {
	if m == nil {
		return
	}
	m.badgeErrors.Inc()
}

// SideEffectError counts a failed post-commit step.
func (m *Metrics) SideEffectError(step string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(step).Inc()
}

// RuleSkipped counts a rule gated out of an event.
func (m *Metrics) RuleSkipped(reason string) {
	if m == nil {
		return
	}
	m.rulesSkipped.WithLabelValues(reason).Inc()
}

// LeaderboardCache counts a cache lookup outcome.
func (m *Metrics) LeaderboardCache(result string) {
	if m == nil {
		return
	}
	m.leaderboardCache.WithLabelValues(result).Inc()
}

// Notification counts a notification delivery outcome.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
