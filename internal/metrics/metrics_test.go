package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"SessionsCreatedTotal", SessionsCreatedTotal},
		{"SessionRecomputesTotal", SessionRecomputesTotal},
		{"SessionsActive", SessionsActive},
		{"TeleportsTotal", TeleportsTotal},
		{"TeleportRetriesTotal", TeleportRetriesTotal},
		{"TransactionStatusTotal", TransactionStatusTotal},
		{"TransactionStaleUpdatesTotal", TransactionStaleUpdatesTotal},
		{"QuoteResultsTotal", QuoteResultsTotal},
		{"QuoteLatency", QuoteLatency},
		{"QuoteBreakerState", QuoteBreakerState},
		{"BalanceWatchersActive", BalanceWatchersActive},
		{"FundsWaitAttemptsTotal", FundsWaitAttemptsTotal},
		{"FundsWaitDuration", FundsWaitDuration},
		{"ReserveCacheHits", ReserveCacheHits},
		{"ReserveCacheMisses", ReserveCacheMisses},
		{"RPCCallsTotal", RPCCallsTotal},
		{"RPCRateLimitWaits", RPCRateLimitWaits},
		{"RelayPublishedTotal", RelayPublishedTotal},
		{"RelayDroppedTotal", RelayDroppedTotal},
		{"AlertsSentTotal", AlertsSentTotal},
		{"AlertsCooldownSkipped", AlertsCooldownSkipped},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestMetrics_CounterIncrement(t *testing.T) {
	t.Parallel()

	c := QuoteResultsTotal.WithLabelValues("TEST", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestMetrics_HistogramObserveNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		QuoteLatency.WithLabelValues("TEST").Observe(0.2)
		FundsWaitDuration.WithLabelValues("DOT", "ok").Observe(12)
	})
}
