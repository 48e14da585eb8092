package risk

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// DefaultTargetMarginLevel margin level that must survive a stop-loss hit.
var DefaultTargetMarginLevel = decimal.RequireFromString("1.3")

// MarginRequirement deposit needed for a trade.
type MarginRequirement struct {
	Amount decimal.Decimal `json:"amount"`
	// Asset is the base asset for BUY and the quote asset for SELL.
	Asset string `json:"asset"`
}

// SmartMargin returns the minimum deposit such that the margin level stays at or above
// targetMarginLevel after the stop-loss is hit. A zero target means DefaultTargetMarginLevel.
//
// BUY:  x = 1 − stop/(target × entry), deposit = size × x in the base asset.
// SELL: size is scaled by entry first, x = 1 − entry/(target × stop), deposit in the quote asset.
//
// The deposit is never below size/(marginRatio − 1), the smallest deposit the exchange
// lets the position be opened with. The floor is applied as max(deposit, floor) rather than
// only when deposit×marginRatio < size, so the result stays monotonic in targetMarginLevel.
func SmartMargin(
	instrument domain.Instrument,
	entry, stop, positionSize decimal.Decimal,
	side domain.Side,
	marginRatio int,
	targetMarginLevel decimal.Decimal,
) (MarginRequirement, error) {
	if err := validatePrices(side, entry, stop); err != nil {
		return MarginRequirement{}, err
	}
	if err := positive("position_size", positionSize); err != nil {
		return MarginRequirement{}, err
	}
	if marginRatio <= 1 {
		return MarginRequirement{}, &domain.RiskError{
			Param: "margin_ratio",
			Value: strconv.Itoa(marginRatio),
			Err:   domain.ErrInvalidMarginRatio,
		}
	}
	if targetMarginLevel.IsZero() {
		targetMarginLevel = DefaultTargetMarginLevel
	}
	if !targetMarginLevel.GreaterThan(one) {
		return MarginRequirement{}, &domain.RiskError{
			Param: "target_margin_level",
			Value: targetMarginLevel.String(),
			Err:   domain.ErrInvalidTargetMargin,
		}
	}

	var (
		size  = positionSize
		x     decimal.Decimal
		asset string
	)
	if side == domain.SideBuy {
		x = one.Sub(stop.Div(targetMarginLevel.Mul(entry)))
		asset = instrument.BaseAsset
	} else {
		size = positionSize.Mul(entry)
		x = one.Sub(entry.Div(targetMarginLevel.Mul(stop)))
		asset = instrument.QuoteAsset
	}

	required := size.Mul(x)
	floor := size.Div(decimal.NewFromInt(int64(marginRatio - 1)))
	if required.LessThan(floor) {
		required = floor
	}

	return MarginRequirement{Amount: required, Asset: asset}, nil
}
