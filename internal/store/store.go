// Package store provides the keyed entity store shared by the session,
// teleport and transaction managers.
package store

import (
	"sync"
	"time"

	"github.com/exezbcz/paraport/internal/domain/model"
)

// Entity is the pointer form of a stored value exposing its shared record.
type Entity[T any, S ~string] interface {
	*T
	Base() *model.Record[S]
}

// Store is an in-memory keyed store with an append-only audit log per entity
// and a typed change channel.
//
// Readers always receive copies. Mutations run under the store lock and
// their notifications are queued before the lock is released, so observers
// see each entity's changes in the order they happened.
type Store[T any, S ~string, K ~string, P Entity[T, S]] struct {
	mu      sync.RWMutex
	items   map[string]*T
	order   []string
	emitter *Emitter[K, T]
	updated K
	derive  func(prev S, item T) []K
	nowFn   func() time.Time
}

type Option[T any, S ~string, K ~string, P Entity[T, S]] func(*Store[T, S, K, P])

// WithDerivedEvents emits the kinds returned by fn after every status change.
func WithDerivedEvents[T any, S ~string, K ~string, P Entity[T, S]](fn func(prev S, item T) []K) Option[T, S, K, P] {
	return func(s *Store[T, S, K, P]) {
		s.derive = fn
	}
}

// WithClock overrides the audit timestamp source.
func WithClock[T any, S ~string, K ~string, P Entity[T, S]](nowFn func() time.Time) Option[T, S, K, P] {
	return func(s *Store[T, S, K, P]) {
		s.nowFn = nowFn
	}
}

// New creates a store announcing changes on the updated channel.
func New[T any, S ~string, K ~string, P Entity[T, S]](updated K, opts ...Option[T, S, K, P]) *Store[T, S, K, P] {
	s := &Store[T, S, K, P]{
		items:   make(map[string]*T),
		emitter: NewEmitter[K, T](),
		updated: updated,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store[T, S, K, P]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return *item, true
}

// GetAll returns every item in insertion order.
func (s *Store[T, S, K, P]) GetAll() []T {
	return s.GetWhere(nil)
}

func (s *Store[T, S, K, P]) GetWhere(pred func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		item := *s.items[id]
		if pred == nil || pred(item) {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store[T, S, K, P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Remove deletes id and returns its last value. Nothing is emitted.
func (s *Store[T, S, K, P]) Remove(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return *item, true
}

// Set stores item under id, replacing any previous value. The record ID is
// forced to id and a "set" audit entry is appended.
func (s *Store[T, S, K, P]) Set(id string, item T, emit bool) T {
	s.mu.Lock()
	p := P(&item)
	rec := p.Base()
	rec.ID = id
	rec.Timestamp = s.nowFn()
	rec.Append(model.Event{Type: "set", Status: string(rec.Status), Error: rec.Error, Timestamp: rec.Timestamp})
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = &item
	out := item
	drain := emit && s.emitter.enqueue(s.updated, out)
	s.mu.Unlock()

	if drain {
		s.emitter.drain()
	}
	return out
}

// AddEvent appends e to id's log. It is a no-op when id is absent.
func (s *Store[T, S, K, P]) AddEvent(id string, e model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return false
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.nowFn()
	}
	P(item).Base().Append(e)
	return true
}

// Update applies fn to id, appends an "update" audit entry and emits.
func (s *Store[T, S, K, P]) Update(id string, fn func(P)) (T, bool) {
	return s.UpdateIf(id, func(p P) bool {
		fn(p)
		return true
	})
}

// UpdateIf applies fn to a copy of id's value and commits only when fn
// returns true. Nothing is recorded or emitted otherwise.
func (s *Store[T, S, K, P]) UpdateIf(id string, fn func(P) bool) (T, bool) {
	return s.mutate(id, "update", fn)
}

// Patch applies fn to id's value without auditing or emitting. fn may veto
// the change by returning false.
func (s *Store[T, S, K, P]) Patch(id string, fn func(P) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return false
	}
	next := *current
	if !fn(P(&next)) {
		return false
	}
	s.items[id] = &next
	return true
}

// UpdateStatus sets id's status after applying fn (which may be nil), appends
// a status-update audit entry and emits. Derived events follow the update
// when the status actually changed.
func (s *Store[T, S, K, P]) UpdateStatus(id string, status S, fn func(P)) (T, bool) {
	return s.mutate(id, model.EventTypeStatusUpdate, func(p P) bool {
		if fn != nil {
			fn(p)
		}
		p.Base().Status = status
		return true
	})
}

// CompareAndSetStatus moves id to status only when its current status passes
// allowed. fn may refine the item and veto the change by returning false.
func (s *Store[T, S, K, P]) CompareAndSetStatus(id string, allowed func(S) bool, status S, fn func(P) bool) (T, bool) {
	return s.mutate(id, model.EventTypeStatusUpdate, func(p P) bool {
		if !allowed(p.Base().Status) {
			return false
		}
		if fn != nil && !fn(p) {
			return false
		}
		p.Base().Status = status
		return true
	})
}

func (s *Store[T, S, K, P]) mutate(id, eventType string, fn func(P) bool) (T, bool) {
	var zero T

	s.mu.Lock()
	current, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	next := *current
	p := P(&next)
	prev := p.Base().Status
	if !fn(p) {
		s.mu.Unlock()
		return zero, false
	}
	rec := p.Base()
	rec.Timestamp = s.nowFn()
	rec.Append(model.Event{Type: eventType, Status: string(rec.Status), Error: rec.Error, Timestamp: rec.Timestamp})
	s.items[id] = &next

	drain := s.emitter.enqueue(s.updated, next)
	if s.derive != nil && prev != rec.Status {
		for _, kind := range s.derive(prev, next) {
			if s.emitter.enqueue(kind, next) {
				drain = true
			}
		}
	}
	s.mu.Unlock()

	if drain {
		s.emitter.drain()
	}
	return next, true
}

// Emit publishes item on kind without touching the stored value.
func (s *Store[T, S, K, P]) Emit(kind K, item T) {
	s.emitter.Emit(kind, item)
}

func (s *Store[T, S, K, P]) Subscribe(kind K, fn func(T)) func() {
	return s.emitter.Subscribe(kind, fn)
}

func (s *Store[T, S, K, P]) ListenerCount(kind K) int {
	return s.emitter.ListenerCount(kind)
}

// Clear drops every item.
func (s *Store[T, S, K, P]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*T)
	s.order = nil
}

func (s *Store[T, S, K, P]) RemoveAllListeners() {
	s.emitter.RemoveAllListeners()
}
