// Package metrics holds the Prometheus collectors of the checkout engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values shared by the counters below.
const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultStale       = "stale"
	ResultExists      = "exists"
	ResultNotFound    = "not_found"
	ResultRejected    = "rejected"
	ResultTimeout     = "timeout"
	ResultUnavailable = "unavailable"
)

var (
	// EmailLookups counts identity store lookups by outcome.
	EmailLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_email_lookups_total",
			Help: "Total number of email existence lookups by result.",
		},
		[]string{"result"},
	)

	// CarrierQuotes counts batched quotation requests by outcome.
	CarrierQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_carrier_quotes_total",
			Help: "Total number of carrier quotation requests by result.",
		},
		[]string{"result"},
	)

	// CardTokenizations counts tokenization attempts by outcome.
	CardTokenizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_card_tokenizations_total",
			Help: "Total number of card tokenization attempts by result.",
		},
		[]string{"result"},
	)

	// Submissions counts order submissions by outcome.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_submissions_total",
			Help: "Total number of order submissions by result.",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions held in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_active_sessions",
			Help: "Number of checkout sessions currently held in memory.",
		},
	)
)
