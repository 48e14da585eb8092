package account

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// ExchangeHistory reads order history of a symbol straight from the exchange.
// It backs order history queries when no order store is configured.
type ExchangeHistory struct {
	exchange Exchange
	store    *Store
}

// NewExchangeHistory creates an exchange backed order history.
func NewExchangeHistory(exchange Exchange, store *Store) *ExchangeHistory {
	return &ExchangeHistory{exchange: exchange, store: store}
}

// Orders lists spot and cross margin orders of symbol, plus isolated margin orders when
// the symbol has an isolated account. Orders are sorted by id.
func (h *ExchangeHistory) Orders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if symbol.IsZero() {
		return nil, &domain.AccountError{Op: "order history", Err: domain.ErrHistorySymbolRequired}
	}

	scopes := []domain.AccountScope{domain.ScopeSpot, domain.ScopeMargin}
	if pair, ok := h.store.IsolatedPair(symbol); ok && pair.AccountCreated {
		scopes = append(scopes, domain.ScopeIsolated)
	}

	var out []domain.Order
	for _, scope := range scopes {
		list, err := h.exchange.AllOrders(ctx, scope, symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s orders of %s", scope, symbol)
		}
		out = append(out, list...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
