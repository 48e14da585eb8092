// Package pricer converts amounts between assets using live exchange quotes.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

var (
	// ErrNoQuote the exchange has no quote for the symbol.
	ErrNoQuote = errors.New("no quote for symbol")
	// ErrNoConversion no direct, inverse or bridged route between two assets.
	ErrNoConversion = errors.New("no conversion route")
)

// Quote top of book and last trade price of a symbol.
type Quote struct {
	Symbol domain.Symbol
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
}

// Price picks the ask for BUY, the bid for SELL and the last trade price otherwise.
// Falls back to the last price when the chosen side of the book is empty.
func (q Quote) Price(side domain.Side) decimal.Decimal {
	var p decimal.Decimal
	switch side {
	case domain.SideBuy:
		p = q.Ask
	case domain.SideSell:
		p = q.Bid
	}
	if p.IsPositive() {
		return p
	}
	return q.Last
}

// QuoteSource fetches quotes from the exchange.
type QuoteSource interface {
	Quote(ctx context.Context, symbol domain.Symbol) (Quote, error)
}

// SymbolSet reports whether the exchange lists a symbol.
type SymbolSet interface {
	Has(symbol domain.Symbol) bool
}
