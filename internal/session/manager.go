// Package session keeps the caller-facing sessions: the funding plan for one
// address and amount, kept current until it is executed.
package session

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/exezbcz/paraport/internal/domain/event"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/store"
	"github.com/exezbcz/paraport/internal/subscription"
)

type sessionStore = store.Store[model.Session, model.SessionStatus, event.SessionEventType, *model.Session]

// State is the computed part of a session.
type State struct {
	Status model.SessionStatus
	Quotes model.SessionQuotes
	Funds  model.SessionFunds
}

type Option func(*Manager)

// WithIDGenerator replaces the uuid-based session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

type Manager struct {
	store  *sessionStore
	newID  func() string
	logger *slog.Logger
}

func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store: store.New[model.Session, model.SessionStatus, event.SessionEventType, *model.Session](
			event.SessionUpdated,
			store.WithDerivedEvents[model.Session, model.SessionStatus, event.SessionEventType, *model.Session](deriveEvents),
		),
		newID:  uuid.NewString,
		logger: logger.With("component", "session_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func deriveEvents(_ model.SessionStatus, s model.Session) []event.SessionEventType {
	switch s.Status {
	case model.SessionStatusCompleted:
		return []event.SessionEventType{event.SessionCompleted}
	case model.SessionStatusFailed:
		return []event.SessionEventType{event.SessionFailed}
	}
	return nil
}

// CreateSession stores a fully computed session and then announces it on
// session:created.
func (m *Manager) CreateSession(params model.SessionParams, state State) model.Session {
	id := m.newID()
	s := m.store.Set(id, model.Session{
		Record: model.Record[model.SessionStatus]{Status: state.Status},
		Params: params,
		Quotes: state.Quotes,
		Funds:  state.Funds,
	}, false)
	m.store.Emit(event.SessionCreated, s)

	metrics.SessionsActive.Inc()
	m.logger.Info("session created",
		"session_id", id,
		"chain", params.Chain,
		"asset", params.Asset,
		"status", s.Status,
		"funds_needed", s.Funds.Needed,
	)
	return s
}

func (m *Manager) Get(id string) (model.Session, bool) {
	return m.store.Get(id)
}

func (m *Manager) GetAll() []model.Session {
	return m.store.GetAll()
}

// UpdateSession applies fn and emits session:updated. It is a no-op when the
// session no longer exists.
func (m *Manager) UpdateSession(id string, fn func(*model.Session)) (model.Session, bool) {
	return m.store.Update(id, fn)
}

// UpdateSessionIf is UpdateSession with a veto: nothing happens when fn
// returns false.
func (m *Manager) UpdateSessionIf(id string, fn func(*model.Session) bool) (model.Session, bool) {
	return m.store.UpdateIf(id, fn)
}

// UpdateStatus moves id to status. Terminal sessions do not move.
func (m *Manager) UpdateStatus(id string, status model.SessionStatus, fn func(*model.Session)) (model.Session, bool) {
	return m.store.CompareAndSetStatus(id, func(s model.SessionStatus) bool {
		return s != status && s != model.SessionStatusCompleted && s != model.SessionStatusFailed
	}, status, func(s *model.Session) bool {
		if fn != nil {
			fn(s)
		}
		return true
	})
}

// CompareAndSetStatus moves id to status only when its current status passes
// allowed. fn may veto the change by returning false.
func (m *Manager) CompareAndSetStatus(id string, allowed func(model.SessionStatus) bool, status model.SessionStatus, fn func(*model.Session) bool) (model.Session, bool) {
	return m.store.CompareAndSetStatus(id, allowed, status, fn)
}

// AttachWatcher stores h as the session's balance watcher without emitting.
// When the session is gone or no longer recomputable, h is released and
// false is returned.
func (m *Manager) AttachWatcher(id string, h *subscription.Handle) bool {
	var prev *subscription.Handle
	if m.store.Patch(id, func(s *model.Session) bool {
		if !s.Recomputable() {
			return false
		}
		prev, s.Unsubscribe = s.Unsubscribe, h
		return true
	}) {
		if prev != h {
			prev.Release()
		}
		return true
	}
	h.Release()
	return false
}

// RemoveSession deletes the session, releases its balance watcher and emits
// session:deleted.
func (m *Manager) RemoveSession(id string) error {
	s, ok := m.store.Remove(id)
	if !ok {
		return model.ErrSessionNotFound.Wrap(id)
	}
	s.Unsubscribe.Release()
	m.store.Emit(event.SessionDeleted, s)
	metrics.SessionsActive.Dec()
	m.logger.Info("session removed", "session_id", id)
	return nil
}

// GetSessionByTeleportID finds the session that started teleportID.
func (m *Manager) GetSessionByTeleportID(teleportID string) (model.Session, bool) {
	if teleportID == "" {
		return model.Session{}, false
	}
	matches := m.store.GetWhere(func(s model.Session) bool {
		return s.TeleportID == teleportID
	})
	if len(matches) == 0 {
		return model.Session{}, false
	}
	return matches[0], true
}

func (m *Manager) Subscribe(kind event.SessionEventType, fn func(model.Session)) func() {
	return m.store.Subscribe(kind, fn)
}

// Destroy releases every balance watcher and drops all sessions and listeners.
func (m *Manager) Destroy() {
	all := m.store.GetAll()
	for _, s := range all {
		s.Unsubscribe.Release()
	}
	m.store.Clear()
	m.store.RemoveAllListeners()
	metrics.SessionsActive.Sub(float64(len(all)))
}
