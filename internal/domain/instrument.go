package domain

import "github.com/shopspring/decimal"

// Instrument static reference data for a tradable symbol.
// Only the isolated margin eligibility flag changes after creation.
type Instrument struct {
	Symbol                Symbol
	BaseAsset             string
	QuoteAsset            string
	Digits                int32
	PriceDigits           int32
	SpotAllowed           bool
	MarginAllowed         bool
	IsolatedMarginAllowed bool
	MinQuantity           decimal.Decimal
	MaxQuantity           decimal.Decimal
	StepSize              decimal.Decimal
}

// Pair returns the instrument as a base/quote pair.
func (i Instrument) Pair() Pair {
	return Pair{From: i.BaseAsset, To: i.QuoteAsset}
}

// DigitsFromStep counts decimal places of an exchange step size ("0.00100000" -> 3).
func DigitsFromStep(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}

	var digits int32
	one := decimal.NewFromInt(1)
	for step.LessThan(one) && digits < 18 {
		step = step.Shift(1)
		digits++
	}

	return digits
}
