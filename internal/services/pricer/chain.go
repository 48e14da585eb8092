package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"go.uber.org/zap"
)

// DefaultBridges assets tried, in order, for two-hop conversions.
var DefaultBridges = []string{"USDT", "BTC", "BUSD", "EUR"}

// ConversionChain converts amounts through a direct pair, the inverse pair, or two hops
// over a bridge asset.
type ConversionChain struct {
	source  QuoteSource
	symbols SymbolSet
	bridges []string
	logger  *zap.Logger
}

// NewConversionChain creates a chain. Nil bridges means DefaultBridges.
func NewConversionChain(source QuoteSource, symbols SymbolSet, bridges []string, logger *zap.Logger) *ConversionChain {
	if bridges == nil {
		bridges = DefaultBridges
	}
	return &ConversionChain{source: source, symbols: symbols, bridges: bridges, logger: logger}
}

// Convert returns amount of from expressed in to. side picks the quote used on every leg
// (ask for BUY, bid for SELL, last price for none).
func (c *ConversionChain) Convert(ctx context.Context, from, to string, amount decimal.Decimal, side domain.Side) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to || amount.IsZero() {
		return amount, nil
	}

	if c.routable(from, to) {
		return c.hop(ctx, from, to, amount, side)
	}

	for _, bridge := range c.bridges {
		if bridge == from || bridge == to || !c.routable(from, bridge) || !c.routable(bridge, to) {
			continue
		}
		mid, err := c.hop(ctx, from, bridge, amount, side)
		if err != nil {
			return decimal.Zero, err
		}
		out, err := c.hop(ctx, bridge, to, mid, side)
		if err != nil {
			return decimal.Zero, err
		}
		c.logger.Debug("converted via bridge",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("bridge", bridge),
			zap.String("amount", amount.String()),
			zap.String("result", out.String()))
		return out, nil
	}

	return decimal.Zero, errors.Wrapf(ErrNoConversion, "%s to %s", from, to)
}

func (c *ConversionChain) routable(from, to string) bool {
	return c.symbols.Has(domain.Symbol(from+to)) || c.symbols.Has(domain.Symbol(to+from))
}

// hop converts over a single listed pair, multiplying on the direct pair and dividing on the inverse one.
func (c *ConversionChain) hop(ctx context.Context, from, to string, amount decimal.Decimal, side domain.Side) (decimal.Decimal, error) {
	direct := domain.Symbol(from + to)
	if c.symbols.Has(direct) {
		price, err := c.price(ctx, direct, side)
		if err != nil {
			return decimal.Zero, err
		}
		return amount.Mul(price), nil
	}

	inverse := domain.Symbol(to + from)
	price, err := c.price(ctx, inverse, side)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(price), nil
}

func (c *ConversionChain) price(ctx context.Context, symbol domain.Symbol, side domain.Side) (decimal.Decimal, error) {
	q, err := c.source.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "quote %s", symbol)
	}
	p := q.Price(side)
	if !p.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrNoQuote, "%s has no usable price", symbol)
	}
	return p, nil
}
