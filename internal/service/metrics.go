package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsEnsured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_attempts_ensured_total",
		Help: "Payment attempts resolved by ensure, labeled by how the row was obtained",
	}, []string{"flow", "outcome"})

	attemptClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_attempt_claims_total",
		Help: "Claim decisions on payment attempts",
	}, []string{"flow", "outcome"})

	waiterOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_waiter_outcomes_total",
		Help: "How waits for a concurrent provider resource ended",
	}, []string{"outcome"})

	waiterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payments_waiter_duration_seconds",
		Help:    "Time spent waiting for a concurrent request to record its provider resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5},
	})
)

const (
	outcomeCreated  = "created"
	outcomeExisting = "existing"
	outcomeRaced    = "raced"
	outcomeLoaded   = "loaded"

	outcomeClaimed  = "claimed"
	outcomeLost     = "lost"
	outcomeConflict = "conflict"
	outcomeClosed   = "closed"

	outcomeFound    = "found"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)
