package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlv_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tlv_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlv_scans_total",
			Help: "Door scans by outcome",
		},
		[]string{"outcome"},
	)

	TicketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlv_tickets_issued_total",
			Help: "Tickets created by initial status",
		},
		[]string{"status"},
	)

	TicketsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tlv_tickets_expired_total",
			Help: "Tickets expired by the sweeper",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tlv_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tlv_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tlv_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
