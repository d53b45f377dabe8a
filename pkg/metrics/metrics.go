package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "primebank", Name: "rate_limit_allowed_total", Help: "Number of allowed login attempts by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "primebank", Name: "rate_limit_rejected_total", Help: "Number of rejected login attempts by limiter type."},
		[]string{"limiter"},
	)
	// RefreshTotal counts refresh executor invocations by outcome (refreshed|failed|skipped).
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "primebank", Name: "refresh_total", Help: "Refresh executor invocations by outcome."},
		[]string{"outcome"},
	)
	LogoutStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "primebank", Name: "logout_step_failures_total", Help: "Best-effort logout steps that failed, by step."},
		[]string{"step"},
	)
	GuardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "primebank", Name: "guard_decisions_total", Help: "Route guard decisions by kind."},
		[]string{"decision"},
	)
	ActiveTabs = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "primebank", Name: "active_tabs", Help: "Tab sessions currently held by the front server."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RefreshTotal)
	reg.MustRegister(LogoutStepFailures)
	reg.MustRegister(GuardDecisions)
	reg.MustRegister(ActiveTabs)
}
