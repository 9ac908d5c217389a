package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowork_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	AvailabilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowork_availability_checks_total",
			Help: "Advisory availability checks by outcome",
		},
		[]string{"outcome"},
	)

	Commits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowork_commits_total",
			Help: "Reservation commits by outcome",
		},
		[]string{"outcome"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cowork_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cowork_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cowork_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cowork_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cowork_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cowork_holds_expired_total",
			Help: "Held reservations expired by the worker",
		},
	)
)
