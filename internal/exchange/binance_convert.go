package exchange

import (
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

const exchangeName = "binance"

// API codes Binance returns for isolated pairs that do not exist.
var pairNotFoundCodes = map[int64]bool{
	-1121:  true, // invalid symbol
	-3052:  true, // isolated margin pair not found
	-11001: true, // isolated margin account does not exist
}

// mapAPIError turns SDK errors into domain.ClientError, tagging the recoverable
// isolated pair failures with domain.ErrPairNotFound / domain.ErrPairDelisted.
func mapAPIError(op string, err error) error {
	apiErr, ok := err.(*common.APIError)
	if !ok {
		return errors.Wrap(err, op)
	}

	reason := errors.New(apiErr.Message)
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "delist"):
		reason = errors.Wrap(domain.ErrPairDelisted, apiErr.Message)
	case pairNotFoundCodes[apiErr.Code], strings.Contains(msg, "not found"):
		reason = errors.Wrap(domain.ErrPairNotFound, apiErr.Message)
	}

	return &domain.ClientError{Op: op, Code: apiErr.Code, Err: reason}
}

// parseDecimal treats empty strings as zero, the SDK leaves absent fields empty.
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s %q", field, raw)
	}
	return v, nil
}

// decimals parses pairs of (field name, raw value) into the given targets.
func decimals(targets []*decimal.Decimal, fields ...string) error {
	for i, dst := range targets {
		v, err := parseDecimal(fields[2*i], fields[2*i+1])
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func spotBalance(b binance.Balance) (domain.Balance, error) {
	out := domain.Balance{Asset: b.Asset}
	err := decimals([]*decimal.Decimal{&out.Free, &out.Locked},
		"free", b.Free,
		"locked", b.Locked)
	return out, err
}

func marginBalance(a binance.UserAsset) (domain.Balance, error) {
	out := domain.Balance{Asset: a.Asset}
	err := decimals([]*decimal.Decimal{&out.Free, &out.Locked, &out.Borrowed, &out.Interest, &out.Net},
		"free", a.Free,
		"locked", a.Locked,
		"borrowed", a.Borrowed,
		"interest", a.Interest,
		"net asset", a.NetAsset)
	return out, err
}

func isolatedBalance(a binance.IsolatedUserAsset) (domain.Balance, error) {
	out := domain.Balance{Asset: a.Asset}
	err := decimals([]*decimal.Decimal{&out.Free, &out.Locked, &out.Borrowed, &out.Interest, &out.Net, &out.NetBTC},
		"free", a.Free,
		"locked", a.Locked,
		"borrowed", a.Borrowed,
		"interest", a.Interest,
		"net asset", a.NetAsset,
		"net asset of btc", a.NetAssetOfBtc)
	return out, err
}

func marginAccount(acc *binance.MarginAccount, ratio int) (domain.MarginAccount, []domain.Balance, error) {
	out := domain.MarginAccount{
		TradeEnabled:    acc.TradeEnabled,
		TransferEnabled: acc.TransferInEnabled && acc.TransferOutEnabled,
		BorrowEnabled:   acc.BorrowEnabled,
		MarginRatio:     ratio,
	}
	err := decimals([]*decimal.Decimal{&out.MarginLevel, &out.TotalAssetOfBTC, &out.TotalLiabilityOfBTC, &out.TotalNetAssetOfBTC},
		"margin level", acc.MarginLevel,
		"total asset of btc", acc.TotalAssetOfBTC,
		"total liability of btc", acc.TotalLiabilityOfBTC,
		"total net asset of btc", acc.TotalNetAssetOfBTC)
	if err != nil {
		return domain.MarginAccount{}, nil, err
	}

	balances := make([]domain.Balance, 0, len(acc.UserAssets))
	for _, a := range acc.UserAssets {
		b, err := marginBalance(a)
		if err != nil {
			return domain.MarginAccount{}, nil, errors.Wrapf(err, "margin asset %s", a.Asset)
		}
		balances = append(balances, b)
	}

	return out, balances, nil
}

func isolatedAccount(a binance.IsolatedMarginAsset, activated bool) (domain.IsolatedAccount, error) {
	out := domain.IsolatedAccount{
		Symbol:  domain.Symbol(a.Symbol),
		Created: a.IsolatedCreated || activated,
	}

	var ratio decimal.Decimal
	if err := decimals([]*decimal.Decimal{&out.MarginLevel, &ratio},
		"margin level", a.MarginLevel,
		"margin ratio", a.MarginRatio); err != nil {
		return domain.IsolatedAccount{}, errors.Wrapf(err, "isolated account %s", a.Symbol)
	}
	out.MarginRatio = int(ratio.IntPart())

	var err error
	if out.Base, err = isolatedBalance(a.BaseAsset); err != nil {
		return domain.IsolatedAccount{}, errors.Wrapf(err, "isolated account %s base", a.Symbol)
	}
	if out.Quote, err = isolatedBalance(a.QuoteAsset); err != nil {
		return domain.IsolatedAccount{}, errors.Wrapf(err, "isolated account %s quote", a.Symbol)
	}

	return out, nil
}

// order converts a REST order. FILLED orders carry the average fill price.
func order(o *binance.Order, scope domain.AccountScope) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(string(o.Status))
	if err != nil {
		return domain.Order{}, errors.Wrapf(err, "order %d", o.OrderID)
	}

	out := domain.Order{
		ID:            o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Exchange:      exchangeName,
		Symbol:        domain.Symbol(o.Symbol),
		Scope:         scope,
		Side:          domain.Side(o.Side),
		Type:          domain.OrderType(o.Type),
		Status:        status,
		UpdatedAt:     time.UnixMilli(o.UpdateTime).UTC(),
	}

	var quoteQty decimal.Decimal
	if err := decimals([]*decimal.Decimal{&out.Price, &out.Quantity, &out.Filled, &quoteQty},
		"price", o.Price,
		"quantity", o.OrigQuantity,
		"executed quantity", o.ExecutedQuantity,
		"cumulative quote quantity", o.CummulativeQuoteQuantity); err != nil {
		return domain.Order{}, errors.Wrapf(err, "order %d", o.OrderID)
	}
	if status == domain.OrderStatusFilled && out.Filled.IsPositive() && quoteQty.IsPositive() {
		out.Price = quoteQty.Div(out.Filled)
	}

	return out, nil
}

func orders(list []*binance.Order, scope domain.AccountScope) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(list))
	for _, o := range list {
		converted, err := order(o, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

// instrument converts an exchange info symbol. Digits come from the LOT_SIZE step and
// price digits from the PRICE_FILTER tick.
func instrument(s binance.Symbol) (domain.Instrument, error) {
	out := domain.Instrument{
		Symbol:        domain.Symbol(s.Symbol),
		BaseAsset:     s.BaseAsset,
		QuoteAsset:    s.QuoteAsset,
		SpotAllowed:   s.IsSpotTradingAllowed,
		MarginAllowed: s.IsMarginTradingAllowed,
	}

	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			if err := decimals([]*decimal.Decimal{&out.MinQuantity, &out.MaxQuantity, &out.StepSize},
				"min qty", filterString(f, "minQty"),
				"max qty", filterString(f, "maxQty"),
				"step size", filterString(f, "stepSize")); err != nil {
				return domain.Instrument{}, errors.Wrapf(err, "symbol %s", s.Symbol)
			}
			out.Digits = domain.DigitsFromStep(out.StepSize)
		case "PRICE_FILTER":
			tick, err := parseDecimal("tick size", filterString(f, "tickSize"))
			if err != nil {
				return domain.Instrument{}, errors.Wrapf(err, "symbol %s", s.Symbol)
			}
			out.PriceDigits = domain.DigitsFromStep(tick)
		}
	}

	return out, nil
}

func filterString(f map[string]interface{}, key string) string {
	s, _ := f[key].(string)
	return s
}
