// Package subscription models ownership of a live watcher.
//
// A Handle is released exactly once no matter how many owners call Release.
// A nil *Handle is valid and releasing it is a no-op.
package subscription

import (
	"sync"
	"sync/atomic"
)

type Handle struct {
	once     sync.Once
	released atomic.Bool
	fn       func()
}

// New wraps an unsubscribe function.
func New(fn func()) *Handle {
	return &Handle{fn: fn}
}

// Noop returns a handle with nothing to tear down.
func Noop() *Handle {
	return &Handle{}
}

// Release runs the teardown on the first call only.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		if h.fn != nil {
			h.fn()
		}
	})
}

func (h *Handle) Released() bool {
	if h == nil {
		return true
	}
	return h.released.Load()
}

// Join returns a handle releasing every non-nil handle in order.
func Join(handles ...*Handle) *Handle {
	hs := make([]*Handle, 0, len(handles))
	for _, h := range handles {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return New(func() {
		for _, h := range hs {
			h.Release()
		}
	})
}
