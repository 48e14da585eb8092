// Package risk sizes positions from a risk budget and computes isolated margin deposits
// that keep the margin level above a target when the stop-loss is hit.
package risk

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

var one = decimal.NewFromInt(1)

// SimplePositionSize returns (accountSize × riskPct) / stopFraction rounded to digits, where
// stopFraction is the relative distance between entry and stop.
func SimplePositionSize(side domain.Side, entry, stop, accountSize, riskPct decimal.Decimal, digits int32) (decimal.Decimal, error) {
	if err := validatePrices(side, entry, stop); err != nil {
		return decimal.Zero, err
	}
	if err := positive("account_size", accountSize); err != nil {
		return decimal.Zero, err
	}
	if err := positive("risk_pct", riskPct); err != nil {
		return decimal.Zero, err
	}

	return sizeFromRisk(side, entry, stop, accountSize.Mul(riskPct), digits), nil
}

// sizeFromRisk expects validated prices.
func sizeFromRisk(side domain.Side, entry, stop, amountAtRisk decimal.Decimal, digits int32) decimal.Decimal {
	return amountAtRisk.Div(stopFraction(side, entry, stop)).Round(digits)
}

func stopFraction(side domain.Side, entry, stop decimal.Decimal) decimal.Decimal {
	if side == domain.SideSell {
		return stop.Sub(entry).Div(entry)
	}
	return entry.Sub(stop).Div(entry)
}

// validatePrices checks the side and that the stop sits below entry for BUY and above it for SELL.
func validatePrices(side domain.Side, entry, stop decimal.Decimal) error {
	if !side.IsValid() {
		return &domain.RiskError{Param: "side", Value: string(side), Err: domain.ErrInvalidSide}
	}
	if err := positive("entry", entry); err != nil {
		return err
	}
	if err := positive("stop", stop); err != nil {
		return err
	}

	switch {
	case side == domain.SideBuy && !stop.LessThan(entry):
		return &domain.RiskError{
			Param:  "stop",
			Value:  stop.String(),
			Detail: "BUY needs stop below entry " + entry.String(),
			Err:    domain.ErrStopOrientation,
		}
	case side == domain.SideSell && !stop.GreaterThan(entry):
		return &domain.RiskError{
			Param:  "stop",
			Value:  stop.String(),
			Detail: "SELL needs stop above entry " + entry.String(),
			Err:    domain.ErrStopOrientation,
		}
	}

	return nil
}

func positive(param string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return &domain.RiskError{Param: param, Value: v.String(), Err: domain.ErrNonPositive}
	}
	return nil
}
