package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
)

// Limiter is a per-chain token bucket guarding RPC calls.
type Limiter struct {
	limiter *rate.Limiter
	chain   model.Chain
}

// NewLimiter allows rps calls per second on chain with burst extra tokens.
func NewLimiter(rps float64, burst int, chain model.Chain) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		chain:   chain,
	}
}

// Wait consumes exactly one token, blocking until it is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return errors.New("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.chain.String()).Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// RecordRPCCall counts one RPC call with its status classification.
func RecordRPCCall(chain model.Chain, method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(chain.String(), method, ClassifyRPCError(err)).Inc()
}

// ClassifyRPCError buckets an RPC error for metrics labels.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || containsAny(lower, "timeout", "deadline exceeded"):
		return "timeout"
	case containsAny(lower, "rate limit", "429", "too many requests"):
		return "rate_limited"
	case containsAny(lower, "500", "502", "503", "internal server error"):
		return "server_error"
	case containsAny(lower, "connection refused", "connection reset", "network is unreachable",
		"no such host", "broken pipe", "eof", "disconnected"):
		return "network_error"
	default:
		return "client_error"
	}
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
