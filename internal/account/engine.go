package account

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/events"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"go.uber.org/zap"
)

const errorsBuffer = 16

// Options engine settings.
type Options struct {
	Seed     SeedOptions
	Isolated IsolatedOptions
	// CrossMarginRatio exchange wide cross margin ratio, domain.DefaultCrossMarginRatio when zero.
	CrossMarginRatio int
	// Recorder persists orders after each applied transition. Optional.
	Recorder OrderRecorder
	Metrics  *metrics.Metrics
}

// Engine owns the account store and the sockets that keep it current.
// It is started once and stopped once; a stopped engine cannot be restarted.
type Engine struct {
	store      *Store
	reconciler *Reconciler
	isolated   *IsolatedManager
	sockets    *socketSet
	orders     *events.Registry[domain.Order]
	balances   *events.Registry[domain.BalanceChange]
	opts       Options
	logger     *zap.Logger

	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	errs    chan error
}

// NewEngine seeds the account state over REST. No engine is returned when seeding fails.
func NewEngine(ctx context.Context, exchange Exchange, streams StreamFactory, opts Options, logger *zap.Logger) (*Engine, error) {
	store := NewStore(opts.CrossMarginRatio)

	began := time.Now()
	snap, err := NewSeeder(exchange, opts.Seed, logger.Named("seeder")).Seed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "seed account state")
	}
	store.Replace(snap)
	opts.Metrics.SeedFinished(time.Since(began))

	orders := events.NewRegistry[domain.Order]()
	balances := events.NewRegistry[domain.BalanceChange]()
	reconciler := NewReconciler(store, exchange, opts.Recorder, orders, balances, opts.Metrics, logger.Named("reconciler"))
	dispatcher := NewDispatcher(reconciler, opts.Metrics, logger.Named("dispatcher"))

	runCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:      store,
		reconciler: reconciler,
		orders:     orders,
		balances:   balances,
		opts:       opts,
		logger:     logger,
		cancel:     cancel,
		errs:       make(chan error, errorsBuffer),
	}
	e.sockets = newSocketSet(runCtx, streams, dispatcher, e.onFatal, opts.Metrics, logger.Named("sockets"))
	e.isolated = newIsolatedManager(store, exchange, e.sockets, opts.Isolated, opts.Metrics, logger.Named("isolated"))

	return e, nil
}

// Start attaches the spot and cross margin sockets and subscribes the configured isolated symbols.
// An isolated symbol that fails to subscribe is reported on Errors and does not stop the others.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return domain.ErrEngineStopped
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	for _, scope := range []domain.AccountScope{domain.ScopeSpot, domain.ScopeMargin} {
		if err := e.sockets.open(ctx, Route{Scope: scope}); err != nil {
			return err
		}
	}

	for _, symbol := range e.opts.Seed.IsolatedSymbols {
		if err := e.isolated.Subscribe(ctx, symbol, e.opts.Seed.CreateMissing); err != nil {
			e.logger.Error("failed to subscribe isolated margin symbol", zap.String("symbol", symbol.String()), zap.Error(err))
			e.publishError(err)
		}
	}

	e.logger.Info("account engine started", zap.Int("isolated_subscribed", len(e.isolated.Subscribed())))
	return nil
}

// Stop closes every socket. Only the first call does work; later calls return domain.ErrEngineStopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return domain.ErrEngineStopped
	}
	e.stopped = true
	close(e.errs)
	e.mu.Unlock()

	e.cancel()
	err := e.sockets.closeAll()
	e.logger.Info("account engine stopped")

	return err
}

// Subscribe attaches an isolated margin symbol. See IsolatedManager.Subscribe.
func (e *Engine) Subscribe(ctx context.Context, symbol domain.Symbol, createIfMissing bool) error {
	if e.isStopped() {
		return domain.ErrEngineStopped
	}
	return e.isolated.Subscribe(ctx, symbol, createIfMissing)
}

// Unsubscribe detaches an isolated margin symbol.
func (e *Engine) Unsubscribe(symbol domain.Symbol) error {
	if e.isStopped() {
		return domain.ErrEngineStopped
	}
	return e.isolated.Unsubscribe(symbol)
}

// Store returns the account state.
func (e *Engine) Store() *Store {
	return e.store
}

// Isolated returns the isolated margin subscription manager.
func (e *Engine) Isolated() *IsolatedManager {
	return e.isolated
}

// OnOrder registers an order callback. It runs on the dispatching goroutine for every execution report.
func (e *Engine) OnOrder(fn func(domain.Order)) events.Handle {
	return e.orders.Register(fn)
}

// OnBalance registers a balance callback. It runs on the dispatching goroutine for every balance change.
func (e *Engine) OnBalance(fn func(domain.BalanceChange)) events.Handle {
	return e.balances.Register(fn)
}

// Deregister removes an order or balance callback.
func (e *Engine) Deregister(h events.Handle) bool {
	return e.orders.Deregister(h) || e.balances.Deregister(h)
}

// Errors delivers scope fatal errors. The channel is closed by Stop.
func (e *Engine) Errors() <-chan error {
	return e.errs
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) onFatal(route Route, err error) {
	if route.Scope == domain.ScopeIsolated {
		e.isolated.detached(route.Symbol)
	}
	e.publishError(errors.Wrapf(err, "%s stream stopped", route))
}

func (e *Engine) publishError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	select {
	case e.errs <- err:
	default:
		e.logger.Warn("errors channel full, dropping", zap.Error(err))
	}
}
