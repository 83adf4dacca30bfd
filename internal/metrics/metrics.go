// Package metrics exposes Prometheus counters for the auth subsystem.
// Everything is registered on the default registry and served on
// /metrics by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignInAttempts counts credential checks by result
	// (success, invalid_credentials, not_validated, disabled).
	SignInAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "findingmemos",
		Subsystem: "auth",
		Name:      "sign_in_attempts_total",
		Help:      "Sign-in attempts by result.",
	}, []string{"result"})

	// RateLimitDecisions counts limiter outcomes per scope
	// (allowed, denied, failed_open, failed_closed).
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "findingmemos",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter decisions by scope and outcome.",
	}, []string{"scope", "outcome"})

	// GateDenials counts requests rejected by the auth gate
	// (unauthenticated, session_expired, forbidden, store_unavailable).
	GateDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "findingmemos",
		Subsystem: "auth",
		Name:      "gate_denials_total",
		Help:      "Requests denied by the auth gate, by reason.",
	}, []string{"reason"})

	// TokensIssued counts single-use tokens by purpose.
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "findingmemos",
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Single-use tokens issued by purpose.",
	}, []string{"purpose"})
)
