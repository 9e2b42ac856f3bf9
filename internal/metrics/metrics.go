package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine counters and histograms, partitioned by chain, protocol or status.

var (
	// Sessions
	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Total sessions created, by initial funding outcome",
	}, []string{"outcome"})

	SessionRecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "session",
		Name:      "recomputes_total",
		Help:      "Total balance-triggered session recomputes",
	}, []string{"result"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "paraport",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently held by the session manager",
	})

	// Teleports
	TeleportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "teleport",
		Name:      "transitions_total",
		Help:      "Total teleport status transitions",
	}, []string{"protocol", "status"})

	TeleportRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "teleport",
		Name:      "retries_total",
		Help:      "Total manual teleport retries",
	}, []string{"protocol"})

	// Transactions
	TransactionStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "transaction",
		Name:      "status_total",
		Help:      "Total transaction status updates",
	}, []string{"chain", "type", "status"})

	TransactionStaleUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "transaction",
		Name:      "stale_updates_total",
		Help:      "Status callbacks dropped because their attempt was superseded",
	}, []string{"chain"})

	// Quotes
	QuoteResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "bridge",
		Name:      "quote_results_total",
		Help:      "Quote outcomes per protocol (ok, none, error, breaker_open)",
	}, []string{"protocol", "result"})

	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paraport",
		Subsystem: "bridge",
		Name:      "quote_duration_seconds",
		Help:      "Quote request duration per protocol",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"protocol"})

	QuoteBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paraport",
		Subsystem: "bridge",
		Name:      "breaker_state",
		Help:      "Quote circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"protocol"})

	// Balances
	BalanceWatchersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paraport",
		Subsystem: "balance",
		Name:      "watchers_active",
		Help:      "Live balance watchers per chain",
	}, []string{"chain", "mode"})

	FundsWaitAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "balance",
		Name:      "funds_wait_attempts_total",
		Help:      "Total balance polls made while waiting for funds",
	}, []string{"asset"})

	FundsWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paraport",
		Subsystem: "balance",
		Name:      "funds_wait_duration_seconds",
		Help:      "Time spent waiting for teleported funds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"asset", "result"})

	ReserveCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "balance",
		Name:      "reserve_cache_hits_total",
		Help:      "Existential reserve lookups served from cache",
	}, []string{"chain"})

	ReserveCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "balance",
		Name:      "reserve_cache_misses_total",
		Help:      "Existential reserve lookups sent to the chain",
	}, []string{"chain"})

	// Chain RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total RPC calls delayed by the rate limiter",
	}, []string{"chain"})

	// Relay
	RelayPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "relay",
		Name:      "published_total",
		Help:      "Events published to the relay sink",
	}, []string{"stream", "result"})

	RelayDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "relay",
		Name:      "dropped_total",
		Help:      "Events dropped because the relay buffer was full",
	}, []string{"stream"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paraport",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"channel", "type"})
)
