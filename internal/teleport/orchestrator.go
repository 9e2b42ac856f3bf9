// Package teleport drives a teleport through its ordered steps: the bridge
// transfer, the wait for funds on the destination, then any follow-up
// actions.
package teleport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/domain/event"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/store"
	"github.com/exezbcz/paraport/internal/subscription"
	"github.com/exezbcz/paraport/internal/tracing"
	"github.com/exezbcz/paraport/internal/transaction"
)

type teleportStore = store.Store[model.Teleport, model.TeleportStatus, event.TeleportEventType, *model.Teleport]

// FundsWaiter reads and waits on destination balances.
type FundsWaiter interface {
	GetBalance(ctx context.Context, ch model.Chain, address string, asset model.Asset) (model.Balance, error)
	WaitForFunds(ctx context.Context, address string, asset model.Asset, chains []model.Chain, amount sdkmath.Int) (model.Balance, error)
}

// AdapterResolver returns the bridge adapter for a protocol.
type AdapterResolver interface {
	Get(protocol model.Protocol) (bridge.Adapter, error)
}

// ActionRequest is one follow-up call to run on the destination chain.
type ActionRequest struct {
	TeleportID    string
	TransactionID string
	Chain         model.Chain
	Address       string
	Action        model.Action
}

// ActionExecutor signs and submits follow-up actions. cb follows the same
// contract as a bridge transfer callback.
type ActionExecutor interface {
	Execute(ctx context.Context, req ActionRequest, cb bridge.StatusCallback) (*subscription.Handle, error)
}

// Params describes what the teleport must achieve.
type Params struct {
	Address string
	Asset   model.Asset
	Amount  sdkmath.Int
	Mode    model.TeleportMode
	Actions []model.Action
}

type Option func(*Orchestrator)

// WithIDGenerator replaces the uuid-based teleport id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// WithActionExecutor enables action steps.
func WithActionExecutor(e ActionExecutor) Option {
	return func(o *Orchestrator) {
		o.actions = e
	}
}

// WithFailureHook is called after a teleport moved to Failed, with the cause.
func WithFailureHook(fn func(model.Teleport, error)) Option {
	return func(o *Orchestrator) {
		o.onFailure = fn
	}
}

// Orchestrator owns the teleport store. Transitions are compare-and-set on
// the store, so callbacks may re-enter it from any goroutine.
type Orchestrator struct {
	store     *teleportStore
	tracker   *transaction.Tracker
	funds     FundsWaiter
	adapters  AdapterResolver
	actions   ActionExecutor
	onFailure func(model.Teleport, error)
	newID     func() string
	logger    *slog.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	unsub  func()
}

func New(funds FundsWaiter, adapters AdapterResolver, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store: store.New[model.Teleport, model.TeleportStatus, event.TeleportEventType, *model.Teleport](
			event.TeleportUpdated,
			store.WithDerivedEvents[model.Teleport, model.TeleportStatus, event.TeleportEventType, *model.Teleport](deriveEvents),
		),
		tracker:  transaction.NewTracker(logger),
		funds:    funds,
		adapters: adapters,
		newID:    uuid.NewString,
		logger:   logger.With("component", "teleport_orchestrator"),
		tracer:   tracing.Tracer("paraport/teleport"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.unsub = o.tracker.Subscribe(event.TransactionUpdated, o.onTransactionUpdate)
	return o
}

func deriveEvents(_ model.TeleportStatus, tp model.Teleport) []event.TeleportEventType {
	if tp.Status == model.TeleportStatusCompleted {
		return []event.TeleportEventType{event.TeleportCompleted}
	}
	return nil
}

func transferTxID(teleportID string) string {
	return teleportID + "-transaction"
}

func actionTxID(teleportID string, order int) string {
	return fmt.Sprintf("%s-transaction-%d", teleportID, order)
}

// CreateTeleport registers a Pending teleport and its steps without starting it.
func (o *Orchestrator) CreateTeleport(ctx context.Context, p Params, quote model.Quote) (model.Teleport, error) {
	if p.Address == "" {
		return model.Teleport{}, model.ErrInvalidParams.Wrap("address is required")
	}
	if quote.Total.IsNil() || !quote.Total.IsPositive() {
		return model.Teleport{}, model.ErrInvalidParams.Wrap("quote total must be positive")
	}
	if len(p.Actions) > 0 && o.actions == nil {
		return model.Teleport{}, model.ErrInvalidParams.Wrap("actions require an action executor")
	}
	if p.Mode == "" {
		p.Mode = quote.Mode
	}

	threshold, err := o.threshold(ctx, p, quote)
	if err != nil {
		return model.Teleport{}, err
	}

	id := o.newID()
	tp := o.store.Set(id, model.Teleport{
		Record: model.Record[model.TeleportStatus]{Status: model.TeleportStatusPending},
		Details: model.TeleportDetails{
			Address: p.Address,
			Amount:  threshold,
			Asset:   p.Asset,
			Route:   quote.Route,
			Mode:    p.Mode,
			Quote:   quote,
		},
	}, false)

	if _, err := o.tracker.CreateTransaction(transaction.NewTransaction{
		ID:         transferTxID(id),
		TeleportID: id,
		Chain:      quote.Route.Origin,
		Type:       model.TransactionTypeTeleport,
		Order:      0,
		Transfer: &model.TransferDetails{
			Amount:  quote.Total,
			From:    quote.Route.Origin,
			To:      quote.Route.Destination,
			Address: p.Address,
			Asset:   p.Asset,
		},
	}); err != nil {
		o.store.Remove(id)
		return model.Teleport{}, err
	}
	for i, action := range p.Actions {
		order := i + 1
		if _, err := o.tracker.CreateTransaction(transaction.NewTransaction{
			ID:         actionTxID(id, order),
			TeleportID: id,
			Chain:      quote.Route.Destination,
			Type:       model.TransactionTypeAction,
			Order:      order,
			Action:     &action,
		}); err != nil {
			o.store.Remove(id)
			return model.Teleport{}, err
		}
	}

	o.logger.Info("teleport created",
		"teleport_id", id,
		"origin", quote.Route.Origin,
		"destination", quote.Route.Destination,
		"protocol", quote.Route.Protocol,
		"threshold", threshold.String(),
		"steps", 1+len(p.Actions),
	)
	return tp, nil
}

// threshold is the transferable balance the destination must reach before
// the teleport counts as arrived.
func (o *Orchestrator) threshold(ctx context.Context, p Params, quote model.Quote) (sdkmath.Int, error) {
	if p.Mode == model.TeleportModeExpected {
		return p.Amount, nil
	}
	base, err := o.funds.GetBalance(ctx, quote.Route.Destination, p.Address, p.Asset)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("read destination balance: %w", err)
	}
	return base.Transferable.Add(quote.Amount), nil
}

// Start announces the teleport and submits its first step.
func (o *Orchestrator) Start(id string) error {
	tp, ok := o.store.Get(id)
	if !ok {
		return model.ErrTeleportNotFound.Wrap(id)
	}
	o.store.Emit(event.TeleportStarted, tp)
	o.dispatch(id)
	return nil
}

// InitiateTeleport creates and starts a teleport.
func (o *Orchestrator) InitiateTeleport(ctx context.Context, p Params, quote model.Quote) (model.Teleport, error) {
	tp, err := o.CreateTeleport(ctx, p, quote)
	if err != nil {
		return model.Teleport{}, err
	}
	if err := o.Start(tp.ID); err != nil {
		return model.Teleport{}, err
	}
	current, _ := o.store.Get(tp.ID)
	return current, nil
}

// dispatch advances the teleport to the lowest-ordered step that still needs
// work. It is safe to call any number of times.
func (o *Orchestrator) dispatch(id string) {
	tp, ok := o.store.Get(id)
	if !ok || tp.Status.Terminal() {
		return
	}
	for _, tx := range o.tracker.TeleportTransactions(id) {
		switch {
		case tx.Failed():
			return
		case tx.Status == model.TransactionStatusFinalized:
			if tx.Type == model.TransactionTypeTeleport && !tp.Checked {
				o.enterWaiting(id)
				return
			}
		case tx.Status == model.TransactionStatusUnknown && !tx.Submitted:
			o.execute(tp, tx)
			return
		default:
			return
		}
	}
	o.transition(id, nonTerminal, model.TeleportStatusCompleted, nil)
}

func (o *Orchestrator) execute(tp model.Teleport, tx model.Transaction) {
	attempt, ok := o.tracker.BeginAttempt(tx.ID)
	if !ok {
		return
	}
	log := o.logger.With("teleport_id", tp.ID, "transaction_id", tx.ID, "attempt", attempt)

	ctx, span := o.tracer.Start(o.ctx, "teleport.execute_step", trace.WithAttributes(
		attribute.String("teleport_id", tp.ID),
		attribute.String("type", string(tx.Type)),
		attribute.Int("attempt", attempt),
	))
	cb := func(u bridge.StatusUpdate) {
		o.tracker.ApplyUpdate(tx.ID, attempt, u)
	}

	var (
		h   *subscription.Handle
		err error
	)
	switch tx.Type {
	case model.TransactionTypeTeleport:
		h, err = o.transfer(ctx, tp, tx, cb)
	case model.TransactionTypeAction:
		o.transition(tp.ID, nonTerminal, model.TeleportStatusExecuting, nil)
		h, err = o.runAction(ctx, tp, tx, cb)
	default:
		err = fmt.Errorf("unsupported transaction type %q", tx.Type)
	}
	tracing.End(span, err)

	if err != nil {
		log.Warn("step submission failed", "error", err)
		o.tracker.UpdateStatus(tx.ID, model.TransactionStatusCancelled, transaction.Update{Error: err.Error()})
		return
	}
	o.tracker.AttachSubscription(tx.ID, attempt, h)
	log.Debug("step submitted", "type", tx.Type)
}

func (o *Orchestrator) transfer(ctx context.Context, tp model.Teleport, tx model.Transaction, cb bridge.StatusCallback) (*subscription.Handle, error) {
	if tx.Transfer == nil {
		return nil, model.ErrInvalidParams.Wrapf("transaction %s has no transfer details", tx.ID)
	}
	adapter, err := o.adapters.Get(tp.Details.Route.Protocol)
	if err != nil {
		return nil, err
	}
	return adapter.Transfer(ctx, bridge.TransferParams{
		Amount:  tx.Transfer.Amount,
		From:    tx.Transfer.From,
		To:      tx.Transfer.To,
		Address: tx.Transfer.Address,
		Asset:   tx.Transfer.Asset,
	}, cb)
}

func (o *Orchestrator) runAction(ctx context.Context, tp model.Teleport, tx model.Transaction, cb bridge.StatusCallback) (*subscription.Handle, error) {
	if o.actions == nil || tx.Action == nil {
		return nil, model.ErrInvalidParams.Wrapf("transaction %s cannot run an action", tx.ID)
	}
	return o.actions.Execute(ctx, ActionRequest{
		TeleportID:    tp.ID,
		TransactionID: tx.ID,
		Chain:         tx.Chain,
		Address:       tp.Details.Address,
		Action:        *tx.Action,
	}, cb)
}

func (o *Orchestrator) onTransactionUpdate(tx model.Transaction) {
	tp, ok := o.store.Get(tx.TeleportID)
	if !ok || tp.Status.Terminal() {
		return
	}
	switch {
	case tx.Failed():
		msg := tx.Error
		if msg == "" {
			msg = "transaction " + tx.ID + " cancelled"
		}
		o.fail(tp.ID, nonTerminal, msg, model.ErrTransport.Wrap(msg))
	case tx.Status == model.TransactionStatusFinalized:
		o.dispatch(tp.ID)
	case tx.Type == model.TransactionTypeTeleport && tx.Status != model.TransactionStatusUnknown:
		o.transition(tp.ID, is(model.TeleportStatusPending), model.TeleportStatusTransferring, nil)
	}
}

func (o *Orchestrator) enterWaiting(id string) {
	tp, ok := o.transition(id, is(model.TeleportStatusPending, model.TeleportStatusTransferring), model.TeleportStatusWaiting, nil)
	if !ok {
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.awaitFunds(tp)
	}()
}

func (o *Orchestrator) awaitFunds(tp model.Teleport) {
	d := tp.Details
	ctx, span := o.tracer.Start(o.ctx, "teleport.await_funds", trace.WithAttributes(
		attribute.String("teleport_id", tp.ID),
		attribute.String("chain", d.Route.Destination.String()),
	))
	_, err := o.funds.WaitForFunds(ctx, d.Address, d.Asset, []model.Chain{d.Route.Destination}, d.Amount)
	tracing.End(span, err)

	if err != nil {
		if o.ctx.Err() != nil {
			return
		}
		o.fail(tp.ID, is(model.TeleportStatusWaiting), err.Error(), err)
		return
	}
	if _, ok := o.store.UpdateIf(tp.ID, func(t *model.Teleport) bool {
		if t.Status != model.TeleportStatusWaiting {
			return false
		}
		t.Checked = true
		return true
	}); !ok {
		return
	}
	o.logger.Info("teleport funds arrived", "teleport_id", tp.ID, "chain", d.Route.Destination)
	o.dispatch(tp.ID)
}

func (o *Orchestrator) fail(id string, allowed func(model.TeleportStatus) bool, msg string, cause error) {
	tp, ok := o.transition(id, allowed, model.TeleportStatusFailed, func(t *model.Teleport) bool {
		t.Error = msg
		return true
	})
	if !ok {
		return
	}
	o.logger.Warn("teleport failed", "teleport_id", id, "error", msg)
	if o.onFailure != nil {
		o.onFailure(tp, cause)
	}
}

func (o *Orchestrator) transition(id string, allowed func(model.TeleportStatus) bool, status model.TeleportStatus, fn func(*model.Teleport) bool) (model.Teleport, bool) {
	tp, ok := o.store.CompareAndSetStatus(id, func(s model.TeleportStatus) bool {
		return s != status && allowed(s)
	}, status, fn)
	if ok {
		metrics.TeleportsTotal.WithLabelValues(tp.Details.Route.Protocol.String(), string(status)).Inc()
		o.logger.Debug("teleport status changed", "teleport_id", id, "status", status)
	}
	return tp, ok
}

func nonTerminal(s model.TeleportStatus) bool {
	return !s.Terminal()
}

func is(statuses ...model.TeleportStatus) func(model.TeleportStatus) bool {
	return func(s model.TeleportStatus) bool {
		return slices.Contains(statuses, s)
	}
}

// RetryTeleport resets the failed steps of a Failed teleport and resumes it
// from the first step that has not completed.
func (o *Orchestrator) RetryTeleport(id string) error {
	tp, ok := o.store.Get(id)
	if !ok {
		return model.ErrTeleportNotFound.Wrap(id)
	}
	if tp.Status != model.TeleportStatusFailed {
		return model.ErrRetryNotAllowed
	}
	for _, tx := range o.tracker.TeleportTransactions(id) {
		if !tx.Failed() {
			continue
		}
		if err := o.tracker.ResetTransaction(tx.ID); err != nil {
			return fmt.Errorf("reset %s: %w", tx.ID, err)
		}
	}
	if _, ok := o.transition(id, is(model.TeleportStatusFailed), model.TeleportStatusPending, func(t *model.Teleport) bool {
		t.Error = ""
		return true
	}); !ok {
		return model.ErrRetryNotAllowed
	}
	metrics.TeleportRetriesTotal.WithLabelValues(tp.Details.Route.Protocol.String()).Inc()
	o.logger.Info("teleport retried", "teleport_id", id)
	o.dispatch(id)
	return nil
}

func (o *Orchestrator) Get(id string) (model.Teleport, bool) {
	return o.store.Get(id)
}

func (o *Orchestrator) GetAll() []model.Teleport {
	return o.store.GetAll()
}

// Transactions returns the teleport's steps in execution order.
func (o *Orchestrator) Transactions(id string) []model.Transaction {
	return o.tracker.TeleportTransactions(id)
}

func (o *Orchestrator) Subscribe(kind event.TeleportEventType, fn func(model.Teleport)) func() {
	return o.store.Subscribe(kind, fn)
}

// SubscribeTransactions observes the steps of every teleport.
func (o *Orchestrator) SubscribeTransactions(kind event.TransactionEventType, fn func(model.Transaction)) func() {
	return o.tracker.Subscribe(kind, fn)
}

// Destroy stops pending waits, releases every step watcher and drops all
// state and listeners.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.unsub()
	o.tracker.Destroy()
	o.store.Clear()
	o.store.RemoveAllListeners()
}

// SelectBestQuote returns the quote with the lowest total fee. Ties keep the
// earliest quote. It returns nil for an empty slice.
func SelectBestQuote(quotes []model.Quote) *model.Quote {
	if len(quotes) == 0 {
		return nil
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Fees.Total.LT(best.Fees.Total) {
			best = q
		}
	}
	return &best
}

// IsFundsWaitExhausted reports whether a failure cause came from the
// destination balance never reaching the threshold.
func IsFundsWaitExhausted(err error) bool {
	return errors.Is(err, model.ErrFundsWaitExhausted)
}
