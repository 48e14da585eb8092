package account

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/events"
	"github.com/vadiminshakov/marginbook/internal/metrics"
	"go.uber.org/zap"
)

// Reconciler applies order transitions and balance changes to the store and notifies observers.
type Reconciler struct {
	store    *Store
	exchange Exchange
	recorder OrderRecorder
	orders   *events.Registry[domain.Order]
	balances *events.Registry[domain.BalanceChange]
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler. recorder and m may be nil.
func NewReconciler(
	store *Store,
	exchange Exchange,
	recorder OrderRecorder,
	orders *events.Registry[domain.Order],
	balances *events.Registry[domain.BalanceChange],
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	if orders == nil {
		orders = events.NewRegistry[domain.Order]()
	}
	if balances == nil {
		balances = events.NewRegistry[domain.BalanceChange]()
	}

	return &Reconciler{
		store:    store,
		exchange: exchange,
		recorder: recorder,
		orders:   orders,
		balances: balances,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ApplyExecution handles one execution report. Order callbacks see every report,
// including the ones the store drops as stale.
func (r *Reconciler) ApplyExecution(ctx context.Context, order domain.Order) error {
	r.orders.Notify(order)

	merged, transition, err := r.store.applyOrder(ctx, order)
	if err != nil {
		r.logger.Error("order integrity violation",
			zap.String("scope", order.Scope.String()),
			zap.Stringer("order", order.Key()),
			zap.Error(err))
		return err
	}

	if transition == transitionDetached {
		r.logger.Debug("dropping event for detached stream", zap.Stringer("order", order.Key()))
		r.metrics.EventDropped(order.Scope.String(), "detached")
		return nil
	}
	if transition == transitionStale {
		r.logger.Debug("dropping event for terminal order",
			zap.Stringer("order", order.Key()),
			zap.String("event_status", string(order.Status)),
			zap.String("terminal_status", string(merged.Status)))
		r.metrics.EventDropped(order.Scope.String(), "terminal_order")
		return nil
	}

	r.metrics.OrderTransition(order.Scope.String(), string(merged.Status))

	if r.recorder != nil {
		if err := r.recorder.InsertOrUpdate(ctx, merged); err != nil {
			r.logger.Error("failed to persist order", zap.Stringer("order", merged.Key()), zap.Error(err))
		}
	}

	if order.Scope.IsMargin() {
		r.refreshMarginLevel(ctx, order.Scope, order.Symbol)
	}

	return nil
}

// refreshMarginLevel re-reads margin health after a trade. Failures leave the previous level in place.
func (r *Reconciler) refreshMarginLevel(ctx context.Context, scope domain.AccountScope, symbol domain.Symbol) {
	if r.exchange == nil {
		return
	}

	switch scope {
	case domain.ScopeMargin:
		acc, _, err := r.exchange.MarginAccount(ctx)
		if err != nil {
			r.logger.Warn("failed to refresh cross margin level", zap.Error(err))
			return
		}
		r.store.setMarginAccount(acc)

	case domain.ScopeIsolated:
		accounts, err := r.exchange.IsolatedMarginAccounts(ctx, symbol)
		if err != nil {
			r.logger.Warn("failed to refresh isolated margin level", zap.String("symbol", symbol.String()), zap.Error(err))
			return
		}
		for _, acc := range accounts {
			if acc.Symbol == symbol {
				r.store.setIsolatedMarginLevel(symbol, acc.MarginLevel)
				return
			}
		}
		r.logger.Warn("isolated margin account missing on refresh", zap.String("symbol", symbol.String()))
	}
}

// ApplyAccountPosition replaces free and locked balances with absolute values.
func (r *Reconciler) ApplyAccountPosition(ctx context.Context, route Route, ts time.Time, positions []domain.Balance) error {
	if err := requireSymbol(route, "account position"); err != nil {
		return err
	}

	updated, err := r.store.applyAccountPosition(ctx, route, positions)
	if err != nil {
		return r.dropDetached(route, err)
	}

	for _, b := range updated {
		r.balances.Notify(domain.BalanceChange{
			Timestamp: r.timestamp(ts),
			Kind:      domain.BalanceChangeSnapshot,
			Scope:     route.Scope,
			Symbol:    route.Symbol,
			Asset:     b.Asset,
			Balance:   b,
		})
	}

	return nil
}

// ApplyBalanceDelta adds a signed delta to the free balance of asset.
func (r *Reconciler) ApplyBalanceDelta(ctx context.Context, route Route, ts time.Time, asset string, delta decimal.Decimal) error {
	if err := requireSymbol(route, "balance delta"); err != nil {
		return err
	}
	if asset == "" {
		return &domain.AccountError{Op: "balance delta", Scope: route.Scope, Symbol: route.Symbol, Err: domain.ErrUnknownAsset}
	}

	b, err := r.store.applyBalanceDelta(ctx, route, asset, delta)
	if err != nil {
		return r.dropDetached(route, err)
	}

	r.balances.Notify(domain.BalanceChange{
		Timestamp: r.timestamp(ts),
		Kind:      domain.BalanceChangeDelta,
		Scope:     route.Scope,
		Symbol:    route.Symbol,
		Asset:     asset,
		Delta:     delta,
		Balance:   b,
	})

	return nil
}

func (r *Reconciler) dropDetached(route Route, err error) error {
	if !errors.Is(err, errDetached) {
		return err
	}
	r.logger.Debug("dropping event for detached stream", zap.Stringer("route", route))
	r.metrics.EventDropped(route.Scope.String(), "detached")
	return nil
}

func (r *Reconciler) timestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return r.now()
	}
	return ts
}

func requireSymbol(route Route, op string) error {
	if route.Scope == domain.ScopeIsolated && route.Symbol.IsZero() {
		return &domain.AccountError{Op: op, Scope: route.Scope, Err: domain.ErrSymbolRequired}
	}
	if !route.Scope.IsValid() {
		return &domain.AccountError{Op: op, Scope: route.Scope, Err: domain.ErrUnknownScope}
	}
	return nil
}
