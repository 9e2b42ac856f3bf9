package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/subscription"
)

// increaseTracker remembers the last raw amount per chain and reports
// strict increases only. The first observation sets the baseline.
type increaseTracker struct {
	mu   sync.Mutex
	last map[model.Chain]sdkmath.Int
}

func (t *increaseTracker) observe(ch model.Chain, amount sdkmath.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[ch]
	t.last[ch] = amount
	return seen && amount.GT(prev)
}

// SubscribeBalances watches every chain and calls fn once per detected
// increase. Decreases are ignored. Chains are pushed through the Watcher
// when one is available and polled otherwise. Releasing the returned handle
// stops all of them.
func (s *Service) SubscribeBalances(ctx context.Context, address string, asset model.Asset, chains []model.Chain, fn func(model.Balance)) (*subscription.Handle, error) {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tracker := &increaseTracker{last: make(map[model.Chain]sdkmath.Int, len(chains))}
	log := s.logger.With("address", address, "asset", asset)

	var released sync.WaitGroup
	handles := make([]*subscription.Handle, 0, len(chains)+1)
	handles = append(handles, subscription.New(cancel))

	onAmount := func(ch model.Chain, raw sdkmath.Int) {
		if watchCtx.Err() != nil || !tracker.observe(ch, raw) {
			return
		}
		reserve, err := s.reserve(watchCtx, ch, asset)
		if err != nil {
			log.Warn("reserve lookup failed on balance increase", "chain", ch, "error", err)
			return
		}
		fn(model.NewBalance(ch, address, asset, raw, reserve))
	}

	for _, ch := range chains {
		var h *subscription.Handle
		var err error
		if s.watcher != nil {
			h, err = s.pushWatch(watchCtx, ch, address, asset, onAmount)
		} else {
			h = s.pollWatch(watchCtx, &released, ch, address, asset, onAmount)
		}
		if err != nil {
			subscription.Join(handles...).Release()
			released.Wait()
			return nil, fmt.Errorf("watch %s balance on %s: %w", asset, ch, err)
		}
		handles = append(handles, h)
	}

	log.Debug("balance watchers started", "chains", len(chains))
	return subscription.Join(handles...), nil
}

func (s *Service) pushWatch(ctx context.Context, ch model.Chain, address string, asset model.Asset, onAmount func(model.Chain, sdkmath.Int)) (*subscription.Handle, error) {
	unsub, err := s.watcher.WatchBalance(ctx, ch, address, asset, func(raw sdkmath.Int) {
		onAmount(ch, raw)
	})
	if err != nil {
		return nil, err
	}
	gauge := metrics.BalanceWatchersActive.WithLabelValues(ch.String(), "push")
	gauge.Inc()
	return subscription.New(func() {
		gauge.Dec()
		if unsub != nil {
			unsub()
		}
	}), nil
}

func (s *Service) pollWatch(ctx context.Context, wg *sync.WaitGroup, ch model.Chain, address string, asset model.Asset, onAmount func(model.Chain, sdkmath.Int)) *subscription.Handle {
	pollCtx, cancel := context.WithCancel(ctx)
	gauge := metrics.BalanceWatchersActive.WithLabelValues(ch.String(), "poll")
	gauge.Inc()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer gauge.Dec()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			raw, err := s.client.Balance(pollCtx, ch, address, asset)
			if err == nil {
				onAmount(ch, raw)
			} else if pollCtx.Err() == nil {
				s.logger.Debug("balance poll failed", "chain", ch, "error", err)
			}
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return subscription.New(cancel)
}
