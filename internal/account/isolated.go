package account

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"github.com/vadiminshakov/marginbook/pkg/retrier"
	"go.uber.org/zap"
)

const (
	defaultSettleInterval = 500 * time.Millisecond
	defaultSettleMaxWait  = 10 * time.Second
	settleMaxAttempts     = 1000
)

var errAccountNotSettled = errors.New("isolated margin account not visible yet")

// IsolatedOptions controls lazy account creation.
type IsolatedOptions struct {
	// SettleInterval delay between account creation and the first poll; later polls back off.
	SettleInterval time.Duration
	// SettleMaxWait total time to wait for a created account to become visible.
	SettleMaxWait time.Duration
	// Sleeper overrides the wall clock between polls.
	Sleeper retrier.Sleeper
	// OnAccountCreated is called after an account was created and became visible.
	OnAccountCreated func(domain.Symbol)
	// OnPairListed is called for isolated margin pairs listed after seeding.
	OnPairListed func(domain.Symbol)
}

// IsolatedManager drives the per-symbol subscription lifecycle:
// UNSUBSCRIBED -> (create account) -> SEEDED -> SUBSCRIBED.
type IsolatedManager struct {
	store    *Store
	exchange Exchange
	sockets  *socketSet
	opts     IsolatedOptions
	settle   *retrier.Retrier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	locksMu sync.Mutex
	locks   map[domain.Symbol]*sync.Mutex
}

func newIsolatedManager(
	store *Store,
	exchange Exchange,
	sockets *socketSet,
	opts IsolatedOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IsolatedManager {
	if opts.SettleInterval <= 0 {
		opts.SettleInterval = defaultSettleInterval
	}
	if opts.SettleMaxWait <= 0 {
		opts.SettleMaxWait = defaultSettleMaxWait
	}

	retryOpts := []retrier.Option{
		retrier.WithInitialInterval(opts.SettleInterval),
		retrier.WithMaxInterval(opts.SettleMaxWait),
		retrier.WithMaxWait(opts.SettleMaxWait),
		retrier.WithMaxRetries(settleMaxAttempts),
		retrier.WithJitter(0),
		// the account is never visible right after creation
		retrier.WithInitialDelay(),
		retrier.WithRetryIf(func(err error) bool { return errors.Is(err, errAccountNotSettled) }),
	}
	if opts.Sleeper != nil {
		retryOpts = append(retryOpts, retrier.WithSleeper(opts.Sleeper))
	}

	return &IsolatedManager{
		store:    store,
		exchange: exchange,
		sockets:  sockets,
		opts:     opts,
		settle:   retrier.New(retryOpts...),
		metrics:  m,
		logger:   logger,
		locks:    make(map[domain.Symbol]*sync.Mutex),
	}
}

func (m *IsolatedManager) lock(symbol domain.Symbol) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.locks[symbol] = l
	}
	return l
}

// Subscribe attaches a live socket for symbol, creating the isolated account first when
// createIfMissing is set. Subscribing an attached symbol is a no-op. A pair the exchange
// refuses to create (not found or delisted) is skipped and nil is returned.
func (m *IsolatedManager) Subscribe(ctx context.Context, symbol domain.Symbol, createIfMissing bool) error {
	l := m.lock(symbol)
	l.Lock()
	defer l.Unlock()

	route := Route{Scope: domain.ScopeIsolated, Symbol: symbol}
	if m.sockets.attached(route) {
		return nil
	}

	if !m.store.IsIsolatedEligible(symbol) {
		if err := m.refreshEligible(ctx); err != nil {
			return err
		}
		if !m.store.IsIsolatedEligible(symbol) {
			return &domain.AccountError{Op: "subscribe", Scope: domain.ScopeIsolated, Symbol: symbol, Err: domain.ErrNotIsolatedSymbol}
		}
	}

	acc, exists, err := m.fetchAccount(ctx, symbol)
	if err != nil {
		return err
	}
	if !exists {
		if !createIfMissing {
			return &domain.AccountError{Op: "subscribe", Scope: domain.ScopeIsolated, Symbol: symbol, Err: domain.ErrIsolatedAccountMissing}
		}
		var created bool
		acc, created, err = m.ensureAccount(ctx, symbol)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
	}

	// SEEDED: balances and open orders land in the store before any event can arrive
	m.store.setIsolatedAccount(acc)
	orders, err := m.exchange.OpenOrders(ctx, domain.ScopeIsolated, symbol)
	if err != nil {
		return errors.Wrapf(err, "list isolated open orders %s", symbol)
	}
	m.store.seedOpenOrders(orders)

	if err := m.sockets.open(ctx, route); err != nil {
		return err
	}
	m.store.setSubscribed(symbol, true)
	m.metrics.SetSubscribed(len(m.Subscribed()))

	m.logger.Info("isolated margin symbol subscribed",
		zap.String("symbol", symbol.String()),
		zap.String("margin_level", acc.MarginLevel.String()),
		zap.Int("open_orders", len(orders)))

	return nil
}

// Unsubscribe forgets the socket key and detaches the socket. Balances are kept.
// Once it returns no event of the old connection is applied. It may be called from
// order and balance callbacks.
func (m *IsolatedManager) Unsubscribe(symbol domain.Symbol) error {
	l := m.lock(symbol)
	l.Lock()
	defer l.Unlock()

	err := m.sockets.close(Route{Scope: domain.ScopeIsolated, Symbol: symbol})
	// takes the store lock, so a mutation that passed the liveness check has finished
	m.detached(symbol)
	if err != nil {
		return errors.Wrapf(err, "close isolated stream %s", symbol)
	}

	m.logger.Info("isolated margin symbol unsubscribed", zap.String("symbol", symbol.String()))
	return nil
}

// detached clears the subscription flag after the socket went away.
func (m *IsolatedManager) detached(symbol domain.Symbol) {
	m.store.setSubscribed(symbol, false)
	m.metrics.SetSubscribed(len(m.Subscribed()))
}

// Subscribed lists symbols with a live socket.
func (m *IsolatedManager) Subscribed() []domain.Symbol {
	var out []domain.Symbol
	for _, p := range m.store.IsolatedPairs() {
		if p.Subscribed {
			out = append(out, p.Symbol)
		}
	}
	return out
}

// refreshEligible reloads the isolated margin pair list so pairs listed after seeding can be subscribed.
func (m *IsolatedManager) refreshEligible(ctx context.Context) error {
	pairs, err := m.exchange.IsolatedMarginSymbols(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh isolated margin pairs")
	}

	for _, p := range pairs {
		if !m.store.addEligible(p) {
			continue
		}
		m.logger.Info("isolated margin pair listed", zap.String("symbol", p.Symbol.String()))
		if m.opts.OnPairListed != nil {
			m.opts.OnPairListed(p.Symbol)
		}
	}
	return nil
}

func (m *IsolatedManager) fetchAccount(ctx context.Context, symbol domain.Symbol) (domain.IsolatedAccount, bool, error) {
	accounts, err := m.exchange.IsolatedMarginAccounts(ctx, symbol)
	if err != nil {
		return domain.IsolatedAccount{}, false, errors.Wrapf(err, "query isolated margin account %s", symbol)
	}
	for _, acc := range accounts {
		if acc.Symbol == symbol && acc.Created {
			return acc, true, nil
		}
	}
	return domain.IsolatedAccount{}, false, nil
}

// ensureAccount creates the account and polls until the exchange reports it.
// It returns created=false when the pair cannot be created.
func (m *IsolatedManager) ensureAccount(ctx context.Context, symbol domain.Symbol) (domain.IsolatedAccount, bool, error) {
	err := m.exchange.CreateIsolatedMarginAccount(ctx, symbol)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPairNotFound), errors.Is(err, domain.ErrPairDelisted):
		m.logger.Warn("skipping isolated margin symbol", zap.String("symbol", symbol.String()), zap.Error(err))
		return domain.IsolatedAccount{}, false, nil
	default:
		return domain.IsolatedAccount{}, false, errors.Wrapf(err, "create isolated margin account %s", symbol)
	}

	// creation is asynchronous on the exchange side
	acc, err := retrier.DoWithData(m.settle, ctx, func(ctx context.Context) (domain.IsolatedAccount, error) {
		acc, ok, err := m.fetchAccount(ctx, symbol)
		if err != nil {
			return domain.IsolatedAccount{}, err
		}
		if !ok {
			return domain.IsolatedAccount{}, errAccountNotSettled
		}
		return acc, nil
	})
	if err != nil {
		return domain.IsolatedAccount{}, false, errors.Wrapf(err, "wait for isolated margin account %s", symbol)
	}

	m.logger.Info("isolated margin account created", zap.String("symbol", symbol.String()))
	if m.opts.OnAccountCreated != nil {
		m.opts.OnAccountCreated(symbol)
	}

	return acc, true, nil
}
