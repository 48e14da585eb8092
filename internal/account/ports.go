// Package account keeps a live, consistent view of spot, cross-margin and isolated-margin
// account state by merging a REST snapshot with the exchange user-data streams.
package account

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// Exchange REST calls the engine needs.
type Exchange interface {
	SpotBalances(ctx context.Context) ([]domain.Balance, error)
	// OpenOrders lists open orders of a scope; an empty symbol means every symbol (not allowed for isolated).
	OpenOrders(ctx context.Context, scope domain.AccountScope, symbol domain.Symbol) ([]domain.Order, error)
	AllOrders(ctx context.Context, scope domain.AccountScope, symbol domain.Symbol) ([]domain.Order, error)
	MarginAccount(ctx context.Context) (domain.MarginAccount, []domain.Balance, error)
	// IsolatedMarginAccounts returns the isolated accounts for symbols, or every existing account when none are given.
	IsolatedMarginAccounts(ctx context.Context, symbols ...domain.Symbol) ([]domain.IsolatedAccount, error)
	IsolatedMarginSymbols(ctx context.Context) ([]domain.IsolatedMarginPair, error)
	// CreateIsolatedMarginAccount returns domain.ErrPairNotFound or domain.ErrPairDelisted for pairs that cannot be created.
	CreateIsolatedMarginAccount(ctx context.Context, symbol domain.Symbol) error
}

// Route identifies the socket an event arrived on.
type Route struct {
	Scope  domain.AccountScope
	Symbol domain.Symbol
}

// String returns the string representation.
func (r Route) String() string {
	if r.Symbol.IsZero() {
		return r.Scope.String()
	}
	return r.Scope.String() + ":" + r.Symbol.String()
}

// MessageHandler receives raw stream payloads.
type MessageHandler func(raw []byte)

// Stream live user-data connection.
type Stream interface {
	// Reconnect drops the current connection and resubscribes the same route.
	Reconnect(ctx context.Context) error
	Close() error
}

// StreamFactory opens user-data streams.
type StreamFactory interface {
	Open(ctx context.Context, route Route, handler MessageHandler) (Stream, error)
}

// ConversionChain converts amounts between assets with live quotes.
type ConversionChain interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal, side domain.Side) (decimal.Decimal, error)
}

// OrderRecorder persists order records.
type OrderRecorder interface {
	InsertOrUpdate(ctx context.Context, order domain.Order) error
}
