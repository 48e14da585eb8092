// Package exchange adapts the Binance REST API and user-data websocket streams to the
// account engine ports.
package exchange

import (
	"context"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"go.uber.org/zap"
)

// Binance accepts at most 5 symbols per isolated margin account query.
const isolatedQueryChunk = 5

// Binance implements account.Exchange and market.InfoSource on the Binance REST API.
type Binance struct {
	client           *binance.Client
	crossMarginRatio int
	logger           *zap.Logger

	// isolated accounts are opened lazily by Binance on the first transfer; symbols
	// validated by CreateIsolatedMarginAccount are reported as created from then on
	activated sync.Map
}

// NewBinance creates the REST adapter.
func NewBinance(client *binance.Client, crossMarginRatio int, logger *zap.Logger) *Binance {
	if crossMarginRatio <= 1 {
		crossMarginRatio = domain.DefaultCrossMarginRatio
	}
	return &Binance{client: client, crossMarginRatio: crossMarginRatio, logger: logger}
}

// SpotBalances returns the spot wallet balances.
func (b *Binance) SpotBalances(ctx context.Context) ([]domain.Balance, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, mapAPIError("spot account", err)
	}

	out := make([]domain.Balance, 0, len(acc.Balances))
	for _, raw := range acc.Balances {
		bal, err := spotBalance(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "spot asset %s", raw.Asset)
		}
		out = append(out, bal)
	}
	return out, nil
}

// OpenOrders lists open orders of a scope. An empty symbol lists every symbol of spot and
// cross margin.
func (b *Binance) OpenOrders(ctx context.Context, scope domain.AccountScope, symbol domain.Symbol) ([]domain.Order, error) {
	var (
		list []*binance.Order
		err  error
	)
	switch scope {
	case domain.ScopeSpot:
		svc := b.client.NewListOpenOrdersService()
		if !symbol.IsZero() {
			svc = svc.Symbol(symbol.String())
		}
		list, err = svc.Do(ctx)
	case domain.ScopeMargin:
		svc := b.client.NewListMarginOpenOrdersService()
		if !symbol.IsZero() {
			svc = svc.Symbol(symbol.String())
		}
		list, err = svc.Do(ctx)
	case domain.ScopeIsolated:
		if symbol.IsZero() {
			return nil, &domain.AccountError{Op: "open orders", Scope: scope, Err: domain.ErrSymbolRequired}
		}
		list, err = b.client.NewListMarginOpenOrdersService().Symbol(symbol.String()).IsIsolated(true).Do(ctx)
	default:
		return nil, &domain.AccountError{Op: "open orders", Scope: scope, Err: domain.ErrUnknownScope}
	}
	if err != nil {
		return nil, mapAPIError("open orders "+scope.String()+" "+symbol.String(), err)
	}

	return orders(list, scope)
}

// AllOrders lists the order history of symbol.
func (b *Binance) AllOrders(ctx context.Context, scope domain.AccountScope, symbol domain.Symbol) ([]domain.Order, error) {
	if symbol.IsZero() {
		return nil, &domain.AccountError{Op: "all orders", Scope: scope, Err: domain.ErrSymbolRequired}
	}

	var (
		list []*binance.Order
		err  error
	)
	switch scope {
	case domain.ScopeSpot:
		list, err = b.client.NewListOrdersService().Symbol(symbol.String()).Do(ctx)
	case domain.ScopeMargin:
		list, err = b.client.NewListMarginOrdersService().Symbol(symbol.String()).Do(ctx)
	case domain.ScopeIsolated:
		list, err = b.client.NewListMarginOrdersService().Symbol(symbol.String()).IsIsolated(true).Do(ctx)
	default:
		return nil, &domain.AccountError{Op: "all orders", Scope: scope, Err: domain.ErrUnknownScope}
	}
	if err != nil {
		return nil, mapAPIError("all orders "+scope.String()+" "+symbol.String(), err)
	}

	return orders(list, scope)
}

// MarginAccount returns the cross margin account and its balances.
func (b *Binance) MarginAccount(ctx context.Context) (domain.MarginAccount, []domain.Balance, error) {
	acc, err := b.client.NewGetMarginAccountService().Do(ctx)
	if err != nil {
		return domain.MarginAccount{}, nil, mapAPIError("margin account", err)
	}
	return marginAccount(acc, b.crossMarginRatio)
}

// IsolatedMarginAccounts returns the isolated accounts of symbols, or every created
// account when no symbols are given.
func (b *Binance) IsolatedMarginAccounts(ctx context.Context, symbols ...domain.Symbol) ([]domain.IsolatedAccount, error) {
	if len(symbols) == 0 {
		return b.isolatedAccounts(ctx, nil)
	}

	var out []domain.IsolatedAccount
	for start := 0; start < len(symbols); start += isolatedQueryChunk {
		end := min(start+isolatedQueryChunk, len(symbols))
		chunk := make([]string, 0, end-start)
		for _, s := range symbols[start:end] {
			chunk = append(chunk, s.String())
		}
		accounts, err := b.isolatedAccounts(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, accounts...)
	}
	return out, nil
}

func (b *Binance) isolatedAccounts(ctx context.Context, symbols []string) ([]domain.IsolatedAccount, error) {
	svc := b.client.NewGetIsolatedMarginAccountService()
	if len(symbols) > 0 {
		svc = svc.Symbols(symbols...)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, mapAPIError("isolated margin accounts", err)
	}

	out := make([]domain.IsolatedAccount, 0, len(res.Assets))
	for _, a := range res.Assets {
		_, activated := b.activated.Load(domain.Symbol(a.Symbol))
		acc, err := isolatedAccount(a, activated)
		if err != nil {
			return nil, err
		}
		if !acc.Created {
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

// IsolatedMarginSymbols lists pairs tradable on isolated margin.
func (b *Binance) IsolatedMarginSymbols(ctx context.Context) ([]domain.IsolatedMarginPair, error) {
	pairs, err := b.client.NewGetIsolatedMarginAllPairsService().Do(ctx)
	if err != nil {
		return nil, mapAPIError("isolated margin pairs", err)
	}

	out := make([]domain.IsolatedMarginPair, 0, len(pairs))
	for _, p := range pairs {
		if !p.IsMarginTrade {
			continue
		}
		out = append(out, domain.IsolatedMarginPair{
			Symbol:     domain.Symbol(p.Symbol),
			BaseAsset:  p.Base,
			QuoteAsset: p.Quote,
		})
	}
	return out, nil
}

// CreateIsolatedMarginAccount validates symbol against the isolated pair list. Binance opens
// the account itself on the first transfer into it.
func (b *Binance) CreateIsolatedMarginAccount(ctx context.Context, symbol domain.Symbol) error {
	pairs, err := b.client.NewGetIsolatedMarginAllPairsService().Do(ctx)
	if err != nil {
		return mapAPIError("create isolated margin account "+symbol.String(), err)
	}

	for _, p := range pairs {
		if domain.Symbol(p.Symbol) != symbol {
			continue
		}
		if !p.IsMarginTrade {
			return errors.Wrapf(domain.ErrPairDelisted, "%s", symbol)
		}
		b.activated.Store(symbol, struct{}{})
		b.logger.Info("isolated margin account activated", zap.String("symbol", symbol.String()))
		return nil
	}

	return errors.Wrapf(domain.ErrPairNotFound, "%s", symbol)
}

// Instruments lists every symbol of the exchange info.
func (b *Binance) Instruments(ctx context.Context) ([]domain.Instrument, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, mapAPIError("exchange info", err)
	}

	out := make([]domain.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		inst, err := instrument(s)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
