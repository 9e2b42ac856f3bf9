// Package engine is the entry point callers use: it opens sessions, keeps
// them current with live balances, executes them as teleports and forwards
// teleport progress back into the owning session.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/exezbcz/paraport/internal/alert"
	"github.com/exezbcz/paraport/internal/balance"
	"github.com/exezbcz/paraport/internal/bridge"
	"github.com/exezbcz/paraport/internal/bridge/xcm"
	"github.com/exezbcz/paraport/internal/chain"
	"github.com/exezbcz/paraport/internal/circuitbreaker"
	"github.com/exezbcz/paraport/internal/config"
	"github.com/exezbcz/paraport/internal/domain/event"
	"github.com/exezbcz/paraport/internal/domain/model"
	"github.com/exezbcz/paraport/internal/metrics"
	"github.com/exezbcz/paraport/internal/relay"
	"github.com/exezbcz/paraport/internal/retry"
	"github.com/exezbcz/paraport/internal/session"
	"github.com/exezbcz/paraport/internal/teleport"
	"github.com/exezbcz/paraport/internal/tracing"
)

const (
	recomputeTimeout = 30 * time.Second
	alertTimeout     = 10 * time.Second
)

type Config struct {
	Chains        []model.Chain
	Protocols     []model.Protocol
	Catalogue     model.Catalogue
	EstimatedTime time.Duration
	PollInterval  time.Duration
	ReserveTTL    time.Duration
	FundsWait     retry.Policy
	Breaker       circuitbreaker.Config
}

// ConfigFrom maps the process configuration onto the engine.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Chains:        cfg.Engine.Chains,
		Protocols:     cfg.Engine.Protocols,
		Catalogue:     cfg.Catalogue.Catalogue(),
		EstimatedTime: cfg.Engine.XCMEstimatedTime,
		PollInterval:  cfg.Balance.PollInterval,
		ReserveTTL:    cfg.Balance.ReserveCacheTTL,
		FundsWait: retry.Policy{
			MaxAttempts: cfg.Balance.FundsWaitMaxAttempts,
			MinDelay:    cfg.Balance.FundsWaitMinDelay,
			MaxDelay:    cfg.Balance.FundsWaitMaxDelay,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
		},
	}
}

func (c Config) validate() error {
	if len(c.Protocols) == 0 {
		return model.ErrConfigValidation.Wrap("At least one bridge protocol must be specified")
	}
	if len(c.Chains) == 0 {
		return model.ErrConfigValidation.Wrap("at least one chain must be configured")
	}
	if len(c.Catalogue.Assets()) == 0 {
		return model.ErrConfigValidation.Wrap("asset catalogue is empty")
	}
	return nil
}

type options struct {
	builder     xcm.RouteBuilder
	adapters    []bridge.Adapter
	actions     teleport.ActionExecutor
	watcher     chain.Watcher
	sessionIDs  func() string
	teleportIDs func() string
	relay       *relay.Publisher
	alerter     alert.Alerter
}

type Option func(*options)

// WithRouteBuilder supplies the wire layer of the built-in XCM adapter.
func WithRouteBuilder(b xcm.RouteBuilder) Option {
	return func(o *options) { o.builder = b }
}

// WithAdapter registers a for its protocol in place of the built-in adapter.
func WithAdapter(a bridge.Adapter) Option {
	return func(o *options) { o.adapters = append(o.adapters, a) }
}

// WithActionExecutor enables sessions with follow-up actions.
func WithActionExecutor(e teleport.ActionExecutor) Option {
	return func(o *options) { o.actions = e }
}

// WithWatcher sets the push source for balance subscriptions, for clients
// wrapped in decorators that hide it.
func WithWatcher(w chain.Watcher) Option {
	return func(o *options) { o.watcher = w }
}

func WithSessionIDs(fn func() string) Option {
	return func(o *options) { o.sessionIDs = fn }
}

func WithTeleportIDs(fn func() string) Option {
	return func(o *options) { o.teleportIDs = fn }
}

// WithRelay exports every session and teleport event through p. The engine
// closes p on Destroy.
func WithRelay(p *relay.Publisher) Option {
	return func(o *options) { o.relay = p }
}

func WithAlerter(a alert.Alerter) Option {
	return func(o *options) { o.alerter = a }
}

type Engine struct {
	cfg       Config
	client    chain.Client
	balances  *balance.Service
	registry  *bridge.Registry
	teleports *teleport.Orchestrator
	sessions  *session.Manager
	relay     *relay.Publisher
	alerter   alert.Alerter
	actions   bool
	logger    *slog.Logger
	tracer    trace.Tracer

	recomputeMu sync.Mutex
	// recomputing holds the sessions with a recompute in flight; the value
	// is set when another trigger arrived during the run.
	recomputing map[string]bool

	initMu      sync.Mutex
	initialized atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	destroyed bool
	failed    map[string]bool
	unsubs    []func()
	wg        sync.WaitGroup
}

func New(cfg Config, client chain.Client, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, model.ErrConfigValidation.Wrap("chain client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	balanceOpts := []balance.Option{
		balance.WithWaitPolicy(cfg.FundsWait),
		balance.WithPollInterval(cfg.PollInterval),
		balance.WithReserveTTL(cfg.ReserveTTL),
	}
	if o.watcher != nil {
		balanceOpts = append(balanceOpts, balance.WithWatcher(o.watcher))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		client:   client,
		balances: balance.New(client, logger, balanceOpts...),
		registry: bridge.NewRegistry(logger, cfg.Breaker),
		relay:    o.relay,
		alerter:  o.alerter,
		actions:  o.actions != nil,
		logger:   logger.With("component", "engine"),
		tracer:   tracing.Tracer("paraport/engine"),
		ctx:      ctx,
		cancel:   cancel,
		failed:   make(map[string]bool),

		recomputing: make(map[string]bool),
	}

	provided := make(map[model.Protocol]bridge.Adapter, len(o.adapters))
	for _, a := range o.adapters {
		provided[a.Protocol()] = a
	}
	for _, p := range cfg.Protocols {
		if a, ok := provided[p]; ok {
			e.registry.Register(a)
			continue
		}
		if p != model.ProtocolXCM || o.builder == nil {
			cancel()
			return nil, model.ErrConfigValidation.Wrapf("no adapter available for protocol %s", p)
		}
		e.registry.Register(xcm.New(xcm.Config{
			Chains:        cfg.Chains,
			Catalogue:     cfg.Catalogue,
			EstimatedTime: cfg.EstimatedTime,
		}, e.balances, o.builder, logger))
	}

	tpOpts := []teleport.Option{teleport.WithFailureHook(e.onTeleportFailed)}
	if o.teleportIDs != nil {
		tpOpts = append(tpOpts, teleport.WithIDGenerator(o.teleportIDs))
	}
	if o.actions != nil {
		tpOpts = append(tpOpts, teleport.WithActionExecutor(o.actions))
	}
	e.teleports = teleport.New(e.balances, e.registry, logger, tpOpts...)

	var sessOpts []session.Option
	if o.sessionIDs != nil {
		sessOpts = append(sessOpts, session.WithIDGenerator(o.sessionIDs))
	}
	e.sessions = session.NewManager(logger, sessOpts...)

	e.unsubs = append(e.unsubs,
		e.teleports.Subscribe(event.TeleportUpdated, e.forwardTeleport),
		e.teleports.Subscribe(event.TeleportCompleted, e.onTeleportCompleted),
	)
	if e.relay != nil {
		e.relay.Start(ctx)
		e.exportEvents()
	}
	return e, nil
}

// Initialize prepares every bridge adapter. It may only succeed once.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized.Load() {
		return model.ErrAlreadyInitialized.Wrap("engine")
	}
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return model.ErrNotInitialized.Wrap("engine was destroyed")
	}
	if err := e.registry.InitializeAll(ctx); err != nil {
		return fmt.Errorf("initialize bridges: %w", err)
	}
	e.initialized.Store(true)
	e.logger.Info("engine initialized", "protocols", len(e.cfg.Protocols), "chains", len(e.cfg.Chains))
	return nil
}

func (e *Engine) ensureInitialized() error {
	if !e.initialized.Load() {
		return model.ErrNotInitialized.Wrap("call Initialize first")
	}
	return nil
}

func normalize(p model.SessionParams) model.SessionParams {
	p.Address = strings.TrimSpace(p.Address)
	if p.Mode == "" {
		p.Mode = model.TeleportModeExpected
	}
	return p
}

func (e *Engine) validate(p model.SessionParams) error {
	switch {
	case p.Address == "":
		return model.ErrInvalidParams.Wrap("address is required")
	case p.Amount.IsNil() || !p.Amount.IsPositive():
		return model.ErrInvalidParams.Wrap("amount must be positive")
	case !slices.Contains(e.cfg.Chains, p.Chain):
		return model.ErrInvalidParams.Wrapf("chain %q is not configured", p.Chain)
	case !e.cfg.Catalogue.Supports(p.Chain, p.Asset):
		return model.ErrInvalidParams.Wrapf("asset %q is not available on %s", p.Asset, p.Chain)
	case !p.Mode.Valid():
		return model.ErrInvalidParams.Wrapf("unknown teleport mode %q", p.Mode)
	case len(p.Actions) > 0 && !e.actions:
		return model.ErrInvalidParams.Wrap("actions are not supported without an action executor")
	}
	return nil
}

// InitSession works out whether params.Chain needs funding and how, stores
// the result as a session and keeps it current as balances grow.
func (e *Engine) InitSession(ctx context.Context, params model.SessionParams) (s model.Session, err error) {
	if err := e.ensureInitialized(); err != nil {
		return model.Session{}, err
	}
	params = normalize(params)
	if err := e.validate(params); err != nil {
		metrics.SessionsCreatedTotal.WithLabelValues("invalid").Inc()
		return model.Session{}, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.init_session", trace.WithAttributes(
		attribute.String("chain", params.Chain.String()),
		attribute.String("asset", params.Asset.String()),
		attribute.String("mode", string(params.Mode)),
	))
	defer func() { tracing.End(span, err) }()

	// The watch starts before the first computation so a deposit landing
	// while it runs is still seen as an increase. Increases observed before
	// the session exists are replayed as one recompute once it does.
	var (
		pendingMu sync.Mutex
		sessionID string
		missed    bool
	)
	chains := e.cfg.Catalogue.Chains(params.Asset, e.cfg.Chains...)
	h, werr := e.balances.SubscribeBalances(ctx, params.Address, params.Asset, chains, func(model.Balance) {
		pendingMu.Lock()
		id := sessionID
		if id == "" {
			missed = true
		}
		pendingMu.Unlock()
		if id != "" {
			e.recompute(id)
		}
	})
	if werr != nil {
		e.logger.Warn("balance watch unavailable, session will not refresh", "error", werr)
	}

	state, err := e.computeState(ctx, params)
	if err != nil {
		h.Release()
		metrics.SessionsCreatedTotal.WithLabelValues("error").Inc()
		return model.Session{}, err
	}
	s = e.sessions.CreateSession(params, state)
	metrics.SessionsCreatedTotal.WithLabelValues(outcome(state)).Inc()

	pendingMu.Lock()
	sessionID = s.ID
	replay := missed
	pendingMu.Unlock()

	if h != nil && e.sessions.AttachWatcher(s.ID, h) && replay {
		e.recompute(s.ID)
	}

	if current, ok := e.sessions.Get(s.ID); ok {
		return current, nil
	}
	return s, nil
}

func outcome(st session.State) string {
	switch {
	case !st.Funds.Needed:
		return "not_needed"
	case st.Funds.Available:
		return "available"
	default:
		return "no_funds"
	}
}

// computeState decides the session's funding plan from the current balances
// and the quotes every protocol offers.
func (e *Engine) computeState(ctx context.Context, p model.SessionParams) (session.State, error) {
	enough, err := e.balances.HasEnoughBalance(ctx, p.Chain, p.Address, p.Asset, p.Amount)
	if err != nil {
		return session.State{}, fmt.Errorf("check %s balance on %s: %w", p.Asset, p.Chain, err)
	}
	if enough {
		return session.State{
			Status: model.SessionStatusReady,
			Quotes: model.SessionQuotes{Available: []model.Quote{}},
		}, nil
	}

	quotes := e.registry.Quotes(ctx, bridge.QuoteParams{
		Address:     p.Address,
		Asset:       p.Asset,
		Destination: p.Chain,
		Amount:      p.Amount,
		Mode:        p.Mode,
	})
	best := teleport.SelectBestQuote(quotes)
	if best == nil {
		return session.State{
			Status: model.SessionStatusPending,
			Quotes: model.SessionQuotes{Available: []model.Quote{}},
			Funds:  model.SessionFunds{Needed: true, NoFundsAtAll: true},
		}, nil
	}
	selected := *best
	return session.State{
		Status: model.SessionStatusReady,
		Quotes: model.SessionQuotes{Available: quotes, Selected: &selected, Best: best},
		Funds:  model.SessionFunds{Needed: true, Available: true},
	}, nil
}

// recompute refreshes a session after a balance increase. Triggers arriving
// while a recompute for the same session runs are folded into one rerun
// started after it, so the last computation always reads balances taken
// after the last trigger.
func (e *Engine) recompute(id string) {
	e.recomputeMu.Lock()
	if _, running := e.recomputing[id]; running {
		e.recomputing[id] = true
		e.recomputeMu.Unlock()
		metrics.SessionRecomputesTotal.WithLabelValues("coalesced").Inc()
		return
	}
	e.recomputing[id] = false
	e.recomputeMu.Unlock()

	for {
		e.recomputeSession(id)

		e.recomputeMu.Lock()
		if !e.recomputing[id] {
			delete(e.recomputing, id)
			e.recomputeMu.Unlock()
			return
		}
		e.recomputing[id] = false
		e.recomputeMu.Unlock()
	}
}

func (e *Engine) recomputeSession(id string) {
	s, ok := e.sessions.Get(id)
	if !ok || !s.Recomputable() || (s.Unsubscribe != nil && s.Unsubscribe.Released()) {
		metrics.SessionRecomputesTotal.WithLabelValues("skipped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, recomputeTimeout)
	defer cancel()
	state, err := e.computeState(ctx, s.Params)
	if err != nil {
		metrics.SessionRecomputesTotal.WithLabelValues("error").Inc()
		if e.ctx.Err() == nil {
			e.logger.Warn("session recompute failed", "session_id", id, "error", err)
		}
		return
	}

	if _, ok := e.sessions.UpdateSessionIf(id, func(cur *model.Session) bool {
		if !cur.Recomputable() {
			return false
		}
		cur.Status = state.Status
		cur.Quotes = state.Quotes
		cur.Funds = state.Funds
		return true
	}); !ok {
		metrics.SessionRecomputesTotal.WithLabelValues("skipped").Inc()
		return
	}
	metrics.SessionRecomputesTotal.WithLabelValues("updated").Inc()
	e.logger.Debug("session recomputed", "session_id", id, "status", state.Status, "funds_available", state.Funds.Available)
}

// ExecuteSession starts a teleport for a Ready session using its selected
// quote and returns the teleport id.
func (e *Engine) ExecuteSession(ctx context.Context, id string) (string, error) {
	if err := e.ensureInitialized(); err != nil {
		return "", err
	}
	s, ok := e.sessions.CompareAndSetStatus(id, func(st model.SessionStatus) bool {
		return st == model.SessionStatusReady
	}, model.SessionStatusProcessing, func(s *model.Session) bool {
		return s.Quotes.Selected != nil
	})
	if !ok {
		return "", e.invalidSession(id)
	}
	s.Unsubscribe.Release()

	tp, err := e.teleports.CreateTeleport(ctx, teleport.Params{
		Address: s.Params.Address,
		Asset:   s.Params.Asset,
		Amount:  s.Params.Amount,
		Mode:    s.Params.Mode,
		Actions: s.Params.Actions,
	}, *s.Quotes.Selected)
	if err != nil {
		e.sessions.UpdateStatus(id, model.SessionStatusFailed, func(s *model.Session) {
			s.Error = err.Error()
		})
		return "", err
	}
	e.sessions.UpdateSession(id, func(s *model.Session) {
		s.TeleportID = tp.ID
	})
	if err := e.teleports.Start(tp.ID); err != nil {
		return "", err
	}
	e.logger.Info("session executing", "session_id", id, "teleport_id", tp.ID)
	return tp.ID, nil
}

func (e *Engine) invalidSession(id string) error {
	s, ok := e.sessions.Get(id)
	switch {
	case !ok:
		return model.ErrInvalidSession.Wrapf("session %s not found", id)
	case s.Status != model.SessionStatusReady:
		return model.ErrInvalidSession.Wrapf("session %s is %s", id, s.Status)
	default:
		return model.ErrInvalidSession.Wrapf("session %s has no quote to execute", id)
	}
}

// RetrySession retries the failed teleport behind a Failed session.
func (e *Engine) RetrySession(id string) error {
	if err := e.ensureInitialized(); err != nil {
		return err
	}
	s, ok := e.sessions.Get(id)
	if !ok {
		return model.ErrInvalidSession.Wrapf("session %s not found", id)
	}
	tp, ok := e.teleports.Get(s.TeleportID)
	if !ok || tp.Status != model.TeleportStatusFailed {
		return model.ErrRetryNotAllowed
	}

	e.sessions.CompareAndSetStatus(id, func(st model.SessionStatus) bool {
		return st == model.SessionStatusFailed
	}, model.SessionStatusProcessing, func(s *model.Session) bool {
		s.Error = ""
		return true
	})
	if err := e.teleports.RetryTeleport(tp.ID); err != nil {
		e.sessions.UpdateStatus(id, model.SessionStatusFailed, func(s *model.Session) {
			s.Error = err.Error()
		})
		return err
	}
	e.logger.Info("session retried", "session_id", id, "teleport_id", tp.ID)
	return nil
}

// RemoveSession deletes the session and stops its balance watcher.
func (e *Engine) RemoveSession(id string) error {
	if err := e.ensureInitialized(); err != nil {
		return err
	}
	return e.sessions.RemoveSession(id)
}

func (e *Engine) GetSession(id string) (model.Session, bool) {
	return e.sessions.Get(id)
}

func (e *Engine) GetTeleport(id string) (model.Teleport, bool) {
	return e.teleports.Get(id)
}

// Transactions returns the steps of a teleport in execution order.
func (e *Engine) Transactions(teleportID string) []model.Transaction {
	return e.teleports.Transactions(teleportID)
}

// OnSession subscribes fn to a session channel and returns the unsubscribe.
func (e *Engine) OnSession(kind event.SessionEventType, fn func(model.Session)) func() {
	return e.sessions.Subscribe(kind, fn)
}

// OnTeleport subscribes fn to a teleport channel and returns the unsubscribe.
func (e *Engine) OnTeleport(kind event.TeleportEventType, fn func(model.Teleport)) func() {
	return e.teleports.Subscribe(kind, fn)
}

func (e *Engine) OnTransaction(kind event.TransactionEventType, fn func(model.Transaction)) func() {
	return e.teleports.SubscribeTransactions(kind, fn)
}

// forwardTeleport mirrors teleport progress onto the session that started it.
func (e *Engine) forwardTeleport(tp model.Teleport) {
	s, ok := e.sessions.GetSessionByTeleportID(tp.ID)
	if !ok {
		return
	}
	switch tp.Status {
	case model.TeleportStatusCompleted:
		e.sessions.UpdateStatus(s.ID, model.SessionStatusCompleted, nil)
	case model.TeleportStatusFailed:
		e.sessions.UpdateStatus(s.ID, model.SessionStatusFailed, func(s *model.Session) {
			s.Error = tp.Error
		})
	default:
		if s.Status != model.SessionStatusProcessing {
			e.sessions.UpdateStatus(s.ID, model.SessionStatusProcessing, nil)
		}
	}
}

func (e *Engine) onTeleportFailed(tp model.Teleport, cause error) {
	kind := alert.AlertTypeTeleportFailed
	title := "Teleport failed"
	if teleport.IsFundsWaitExhausted(cause) {
		kind = alert.AlertTypeFundsWaitExhausted
		title = "Teleported funds did not arrive"
	}
	e.mu.Lock()
	e.failed[tp.ID] = true
	e.mu.Unlock()
	e.sendAlert(tp, kind, title, tp.Error)
}

func (e *Engine) onTeleportCompleted(tp model.Teleport) {
	e.mu.Lock()
	recovered := e.failed[tp.ID]
	delete(e.failed, tp.ID)
	e.mu.Unlock()
	if recovered {
		e.sendAlert(tp, alert.AlertTypeRecovery, "Teleport recovered", "completed after retry")
	}
}

func (e *Engine) sendAlert(tp model.Teleport, kind alert.AlertType, title, msg string) {
	if e.alerter == nil {
		return
	}
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	d := tp.Details
	a := alert.Alert{
		Type:       kind,
		Protocol:   d.Route.Protocol.String(),
		Chain:      d.Route.Destination.String(),
		TeleportID: tp.ID,
		Title:      title,
		Message:    msg,
		Fields: map[string]string{
			"origin":      d.Route.Origin.String(),
			"destination": d.Route.Destination.String(),
			"asset":       d.Asset.String(),
			"amount":      d.Quote.Total.String(),
		},
	}
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := e.alerter.Send(ctx, a); err != nil {
			e.logger.Warn("alert delivery failed", "teleport_id", tp.ID, "type", kind, "error", err)
		}
	}()
}

// teleportRecord is the relay payload of a teleport event.
type teleportRecord struct {
	model.Teleport
	Transactions []model.Transaction `json:"transactions"`
}

func (e *Engine) exportEvents() {
	for _, kind := range event.SessionEventTypes() {
		e.unsubs = append(e.unsubs, e.sessions.Subscribe(kind, func(s model.Session) {
			e.relay.Enqueue(relay.Record{
				Type:    string(kind),
				ID:      s.ID,
				Status:  string(s.Status),
				Error:   s.Error,
				Payload: s,
			})
		}))
	}
	for _, kind := range event.TeleportEventTypes() {
		e.unsubs = append(e.unsubs, e.teleports.Subscribe(kind, func(tp model.Teleport) {
			e.relay.Enqueue(relay.Record{
				Type:    string(kind),
				ID:      tp.ID,
				Status:  string(tp.Status),
				Error:   tp.Error,
				Payload: teleportRecord{Teleport: tp, Transactions: e.teleports.Transactions(tp.ID)},
			})
		}))
	}
}

// Destroy tears the engine down: watchers, pending waits, listeners, the
// relay and the chain client when it can be closed. It is safe to call twice.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	e.initialized.Store(false)
	e.cancel()
	for _, unsub := range unsubs {
		unsub()
	}
	e.sessions.Destroy()
	e.teleports.Destroy()
	e.wg.Wait()

	if e.relay != nil {
		if err := e.relay.Close(); err != nil {
			e.logger.Warn("relay close failed", "error", err)
		}
	}
	if c, ok := e.client.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logger.Warn("chain client close failed", "error", err)
		}
	}
	e.logger.Info("engine destroyed")
}
