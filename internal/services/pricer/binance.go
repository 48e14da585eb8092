package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// binance rejects unknown symbols with this code
const invalidSymbolCode = -1121

// BinancePriceSource reads book tickers and last prices from the Binance REST API.
type BinancePriceSource struct {
	client *binance.Client
}

// NewBinancePriceSource creates a price source.
func NewBinancePriceSource(client *binance.Client) *BinancePriceSource {
	return &BinancePriceSource{client: client}
}

// Quote returns the best bid/ask and the last trade price of symbol.
func (p *BinancePriceSource) Quote(ctx context.Context, symbol domain.Symbol) (Quote, error) {
	tickers, err := p.client.NewListBookTickersService().Symbol(symbol.String()).Do(ctx)
	if err != nil {
		return Quote{}, wrapQuoteErr(err, symbol)
	}
	if len(tickers) == 0 {
		return Quote{}, errors.Wrapf(ErrNoQuote, "empty book ticker for %s", symbol)
	}

	prices, err := p.client.NewListPricesService().Symbol(symbol.String()).Do(ctx)
	if err != nil {
		return Quote{}, wrapQuoteErr(err, symbol)
	}
	if len(prices) == 0 {
		return Quote{}, errors.Wrapf(ErrNoQuote, "empty prices for %s", symbol)
	}

	q := Quote{Symbol: symbol}
	if q.Bid, err = decimal.NewFromString(tickers[0].BidPrice); err != nil {
		return Quote{}, errors.Wrapf(err, "parse bid price of %s", symbol)
	}
	if q.Ask, err = decimal.NewFromString(tickers[0].AskPrice); err != nil {
		return Quote{}, errors.Wrapf(err, "parse ask price of %s", symbol)
	}
	if q.Last, err = decimal.NewFromString(prices[0].Price); err != nil {
		return Quote{}, errors.Wrapf(err, "parse last price of %s", symbol)
	}

	return q, nil
}

func wrapQuoteErr(err error, symbol domain.Symbol) error {
	if apiErr, ok := err.(*common.APIError); ok {
		if apiErr.Code == invalidSymbolCode {
			return errors.Wrapf(ErrNoQuote, "%s: %s", symbol, apiErr.Message)
		}
		return &domain.ClientError{Op: "quote " + symbol.String(), Code: apiErr.Code, Err: errors.New(apiErr.Message)}
	}
	return errors.Wrapf(err, "quote %s", symbol)
}
