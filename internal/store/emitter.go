package store

import (
	"slices"
	"sync"
	"sync/atomic"
)

type subscriber[P any] struct {
	id     uint64
	fn     func(P)
	active *atomic.Bool
}

type delivery[K ~string, P any] struct {
	kind    K
	payload P
}

// Emitter is a typed in-process publish/subscribe channel set.
//
// Deliveries are queued and drained by a single goroutine at a time, outside
// any lock, so handlers may emit again or (un)subscribe without deadlocking.
// Every subscriber sees emissions in the order they were enqueued.
type Emitter[K ~string, P any] struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[K][]subscriber[P]
	queue    []delivery[K, P]
	draining bool
}

func NewEmitter[K ~string, P any]() *Emitter[K, P] {
	return &Emitter[K, P]{subs: make(map[K][]subscriber[P])}
}

// Subscribe registers fn on kind and returns its unsubscribe function.
// Unsubscribing is idempotent and never affects other subscribers.
func (e *Emitter[K, P]) Subscribe(kind K, fn func(P)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	sub := subscriber[P]{id: e.nextID, fn: fn, active: new(atomic.Bool)}
	sub.active.Store(true)
	e.subs[kind] = append(e.subs[kind], sub)

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs[kind] = slices.DeleteFunc(slices.Clone(e.subs[kind]), func(s subscriber[P]) bool {
			return s.id == sub.id
		})
	}
}

// Emit delivers payload to every subscriber of kind.
func (e *Emitter[K, P]) Emit(kind K, payload P) {
	if e.enqueue(kind, payload) {
		e.drain()
	}
}

// ListenerCount returns the number of subscribers on kind.
func (e *Emitter[K, P]) ListenerCount(kind K) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[kind])
}

// RemoveAllListeners drops every subscriber and pending delivery.
func (e *Emitter[K, P]) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, subs := range e.subs {
		for _, s := range subs {
			s.active.Store(false)
		}
	}
	e.subs = make(map[K][]subscriber[P])
	e.queue = nil
}

// enqueue reports whether the caller became the drainer.
func (e *Emitter[K, P]) enqueue(kind K, payload P) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, delivery[K, P]{kind: kind, payload: payload})
	if e.draining {
		return false
	}
	e.draining = true
	return true
}

func (e *Emitter[K, P]) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		d := e.queue[0]
		e.queue = e.queue[1:]
		subs := e.subs[d.kind]
		e.mu.Unlock()

		for _, s := range subs {
			if s.active.Load() {
				e.deliver(s, d.payload)
			}
		}
	}
}

// deliver gives up the drainer role if a handler panics so later emits still flush.
func (e *Emitter[K, P]) deliver(s subscriber[P], payload P) {
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.draining = false
			e.mu.Unlock()
			panic(r)
		}
	}()
	s.fn(payload)
}
