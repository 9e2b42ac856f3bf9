// Package transaction tracks the ordered steps a teleport submits on chain.
package transaction

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/domain/event"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/store"
	"github.com/exezbcz/paraport/internal/subscription"
)

type txStore = store.Store[model.Transaction, model.TransactionStatus, event.TransactionEventType, *model.Transaction]

// NewTransaction describes a step to register.
type NewTransaction struct {
	ID         string
	TeleportID string
	Chain      model.Chain
	Type       model.TransactionType
	Order      int
	Transfer   *model.TransferDetails
	Action     *model.Action
}

// Update carries the optional fields merged by UpdateStatus.
type Update struct {
	TxHash    string
	Error     string
	Succeeded *bool
}

// Tracker owns every transaction and publishes their lifecycle on the
// transaction:* channels.
type Tracker struct {
	store  *txStore
	logger *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store: store.New[model.Transaction, model.TransactionStatus, event.TransactionEventType, *model.Transaction](
			event.TransactionUpdated,
			store.WithDerivedEvents[model.Transaction, model.TransactionStatus, event.TransactionEventType, *model.Transaction](deriveEvents),
		),
		logger: logger.With("component", "transaction_tracker"),
	}
}

func deriveEvents(_ model.TransactionStatus, tx model.Transaction) []event.TransactionEventType {
	switch {
	case tx.Failed():
		return []event.TransactionEventType{event.TransactionFailed}
	case tx.Status == model.TransactionStatusFinalized:
		return []event.TransactionEventType{event.TransactionCompleted}
	case tx.Status.InFlight():
		return []event.TransactionEventType{event.TransactionProcessing}
	}
	return nil
}

// CreateTransaction stores a new step in Unknown status. Nothing is emitted.
func (t *Tracker) CreateTransaction(nt NewTransaction) (model.Transaction, error) {
	if nt.ID == "" || nt.TeleportID == "" {
		return model.Transaction{}, model.ErrInvalidParams.Wrap("transaction id and teleport id are required")
	}
	tx := t.store.Set(nt.ID, model.Transaction{
		Record:     model.Record[model.TransactionStatus]{Status: model.TransactionStatusUnknown},
		TeleportID: nt.TeleportID,
		Chain:      nt.Chain,
		Type:       nt.Type,
		Order:      nt.Order,
		Transfer:   nt.Transfer,
		Action:     nt.Action,
	}, false)
	t.logger.Debug("transaction created", "transaction_id", tx.ID, "teleport_id", tx.TeleportID, "order", tx.Order)
	return tx, nil
}

func (t *Tracker) Get(id string) (model.Transaction, bool) {
	return t.store.Get(id)
}

// TeleportTransactions returns teleportID's steps sorted by order, optionally
// restricted to the given types.
func (t *Tracker) TeleportTransactions(teleportID string, types ...model.TransactionType) []model.Transaction {
	txs := t.store.GetWhere(func(tx model.Transaction) bool {
		return tx.TeleportID == teleportID && (len(types) == 0 || slices.Contains(types, tx.Type))
	})
	slices.SortStableFunc(txs, func(a, b model.Transaction) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return txs
}

func (t *Tracker) IsTransactionFailed(tx model.Transaction) bool {
	return tx.Failed()
}

// ResetTransaction releases the step's watcher and returns it to Unknown so
// it can be submitted again. Resetting a clean step changes nothing.
func (t *Tracker) ResetTransaction(id string) error {
	var handle *subscription.Handle
	_, changed := t.store.UpdateIf(id, func(tx *model.Transaction) bool {
		handle = tx.Unsubscribe
		clean := tx.Status == model.TransactionStatusUnknown &&
			tx.Error == "" && tx.Succeeded == nil && tx.TxHash == "" &&
			tx.Unsubscribe == nil && !tx.Submitted
		if clean {
			return false
		}
		tx.Status = model.TransactionStatusUnknown
		tx.Error = ""
		tx.Succeeded = nil
		tx.TxHash = ""
		tx.Unsubscribe = nil
		tx.Submitted = false
		return true
	})
	handle.Release()

	if !changed {
		if _, ok := t.store.Get(id); !ok {
			return model.ErrTransactionNotFound.Wrap(id)
		}
		return nil
	}
	t.logger.Info("transaction reset", "transaction_id", id)
	return nil
}

// UpdateStatus sets id's status and merges the non-empty fields of u.
func (t *Tracker) UpdateStatus(id string, status model.TransactionStatus, u Update) (model.Transaction, bool) {
	tx, ok := t.store.UpdateStatus(id, status, func(tx *model.Transaction) {
		merge(tx, u)
	})
	if ok {
		t.observe(tx)
	}
	return tx, ok
}

func merge(tx *model.Transaction, u Update) {
	if u.TxHash != "" {
		tx.TxHash = u.TxHash
	}
	if u.Error != "" {
		tx.Error = u.Error
	}
	if u.Succeeded != nil {
		tx.Succeeded = u.Succeeded
	}
}

// BeginAttempt claims an Unknown, unsubmitted step for submission and returns
// the new attempt number. It reports false when the step is missing or was
// already claimed.
func (t *Tracker) BeginAttempt(id string) (int, bool) {
	tx, ok := t.store.UpdateIf(id, func(tx *model.Transaction) bool {
		if tx.Status != model.TransactionStatusUnknown || tx.Submitted {
			return false
		}
		tx.Submitted = true
		tx.Attempt++
		return true
	})
	if !ok {
		return 0, false
	}
	t.store.Emit(event.TransactionStarted, tx)
	return tx.Attempt, true
}

// ApplyUpdate records a status callback from attempt. Callbacks from an older
// attempt, or arriving after the step settled, are dropped.
func (t *Tracker) ApplyUpdate(id string, attempt int, u bridge.StatusUpdate) bool {
	if u.Status == model.TransactionStatusUnknown {
		return false
	}
	var stale bool
	tx, ok := t.store.CompareAndSetStatus(id, func(s model.TransactionStatus) bool {
		return s != model.TransactionStatusFinalized && s != model.TransactionStatusCancelled
	}, u.Status, func(tx *model.Transaction) bool {
		if tx.Attempt != attempt {
			stale = true
			return false
		}
		merge(tx, Update{TxHash: u.TxHash, Error: u.Error, Succeeded: u.Succeeded})
		return true
	})
	if stale {
		current, _ := t.store.Get(id)
		metrics.TransactionStaleUpdatesTotal.WithLabelValues(current.Chain.String()).Inc()
		t.logger.Debug("dropping stale transaction update", "transaction_id", id, "attempt", attempt, "status", u.Status)
		return false
	}
	if ok {
		t.observe(tx)
	}
	return ok
}

// AttachSubscription stores h as the watcher of attempt. A superseded attempt's
// watcher is released immediately.
func (t *Tracker) AttachSubscription(id string, attempt int, h *subscription.Handle) bool {
	attached := t.store.Patch(id, func(tx *model.Transaction) bool {
		if tx.Attempt != attempt || !tx.Submitted {
			return false
		}
		tx.Unsubscribe = h
		return true
	})
	if !attached {
		h.Release()
	}
	return attached
}

func (t *Tracker) observe(tx model.Transaction) {
	metrics.TransactionStatusTotal.WithLabelValues(tx.Chain.String(), string(tx.Type), statusLabel(tx.Status)).Inc()
	if tx.Failed() {
		t.logger.Warn("transaction failed", "transaction_id", tx.ID, "teleport_id", tx.TeleportID, "error", tx.Error)
	}
}

func statusLabel(s model.TransactionStatus) string {
	if s == model.TransactionStatusUnknown {
		return "unknown"
	}
	return string(s)
}

func (t *Tracker) Subscribe(kind event.TransactionEventType, fn func(model.Transaction)) func() {
	return t.store.Subscribe(kind, fn)
}

// Destroy releases every watcher and drops all steps and listeners.
func (t *Tracker) Destroy() {
	for _, tx := range t.store.GetAll() {
		tx.Unsubscribe.Release()
	}
	t.store.Clear()
	t.store.RemoveAllListeners()
}
