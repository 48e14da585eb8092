package risk

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"go.uber.org/zap"
)

// Converter converts amounts between assets with live quotes.
type Converter interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal, side domain.Side) (decimal.Decimal, error)
}

// MarginSource provides margin ratios of the tracked accounts.
type MarginSource interface {
	MarginAccount() domain.MarginAccount
	IsolatedPair(symbol domain.Symbol) (domain.IsolatedMarginPair, bool)
}

// PositionRequest input of CalculatePositionSize.
type PositionRequest struct {
	Instrument domain.Instrument
	Side       domain.Side
	Entry      decimal.Decimal
	Stop       decimal.Decimal
	// AccountSize is expressed in Denomination.
	AccountSize  decimal.Decimal
	Denomination string
	// RiskPct is a fraction of AccountSize (0.02 = 2%). Values above 1 need margin.
	RiskPct decimal.Decimal
	Margin  bool
}

// Calculator sizes positions and margin deposits against live account data.
type Calculator struct {
	converter         Converter
	margins           MarginSource
	targetMarginLevel decimal.Decimal
	logger            *zap.Logger
}

// NewCalculator creates a calculator. A zero targetMarginLevel means DefaultTargetMarginLevel.
func NewCalculator(converter Converter, margins MarginSource, targetMarginLevel decimal.Decimal, logger *zap.Logger) *Calculator {
	if targetMarginLevel.IsZero() {
		targetMarginLevel = DefaultTargetMarginLevel
	}
	return &Calculator{
		converter:         converter,
		margins:           margins,
		targetMarginLevel: targetMarginLevel,
		logger:            logger,
	}
}

// CalculatePositionSize sizes a position so that hitting the stop loses AccountSize × RiskPct.
// The risk amount is expressed in the instrument's base asset first: as is when the account is
// denominated in the base asset, divided by entry when it is the quote asset, and through the
// converter otherwise.
func (c *Calculator) CalculatePositionSize(ctx context.Context, req PositionRequest) (decimal.Decimal, error) {
	if err := validatePrices(req.Side, req.Entry, req.Stop); err != nil {
		return decimal.Zero, err
	}
	if err := positive("account_size", req.AccountSize); err != nil {
		return decimal.Zero, err
	}
	if err := positive("risk_pct", req.RiskPct); err != nil {
		return decimal.Zero, err
	}
	if req.RiskPct.GreaterThan(one) && !req.Margin {
		return decimal.Zero, &domain.RiskError{
			Param:  "risk_pct",
			Value:  req.RiskPct.String(),
			Detail: "above 1 requires margin",
			Err:    domain.ErrRiskOutOfRange,
		}
	}
	if req.Side == domain.SideSell && !req.Margin {
		return decimal.Zero, &domain.RiskError{Param: "side", Value: string(req.Side), Err: domain.ErrShortWithoutMargin}
	}

	amountAtRisk := req.AccountSize.Mul(req.RiskPct)
	base := req.Instrument.BaseAsset
	denom := strings.ToUpper(req.Denomination)

	var riskInBase decimal.Decimal
	switch denom {
	case base:
		riskInBase = amountAtRisk
	case req.Instrument.QuoteAsset:
		riskInBase = amountAtRisk.Div(req.Entry)
	default:
		converted, err := c.converter.Convert(ctx, denom, base, amountAtRisk, req.Side)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "convert risk amount %s to %s", denom, base)
		}
		riskInBase = converted
	}

	size := sizeFromRisk(req.Side, req.Entry, req.Stop, riskInBase, req.Instrument.Digits)

	c.logger.Debug("position sized",
		zap.String("symbol", req.Instrument.Symbol.String()),
		zap.String("side", string(req.Side)),
		zap.String("risk_in_base", riskInBase.String()),
		zap.String("size", size.String()))

	return size, nil
}

// MarginForTrade computes the deposit for a margin trade using the margin ratio of the
// cross-margin account or of the instrument's isolated pair.
func (c *Calculator) MarginForTrade(
	scope domain.AccountScope,
	instrument domain.Instrument,
	side domain.Side,
	entry, stop, positionSize decimal.Decimal,
) (MarginRequirement, error) {
	var ratio int
	switch scope {
	case domain.ScopeMargin:
		ratio = c.margins.MarginAccount().MarginRatio
	case domain.ScopeIsolated:
		pair, ok := c.margins.IsolatedPair(instrument.Symbol)
		if !ok {
			return MarginRequirement{}, &domain.AccountError{
				Op:     "margin for trade",
				Scope:  scope,
				Symbol: instrument.Symbol,
				Err:    domain.ErrIsolatedAccountMissing,
			}
		}
		ratio = pair.MarginRatio
	default:
		return MarginRequirement{}, &domain.AccountError{Op: "margin for trade", Scope: scope, Err: domain.ErrNoMarginAccount}
	}

	req, err := SmartMargin(instrument, entry, stop, positionSize, side, ratio, c.targetMarginLevel)
	if err != nil {
		return MarginRequirement{}, err
	}

	c.logger.Debug("margin computed",
		zap.String("scope", scope.String()),
		zap.String("symbol", instrument.Symbol.String()),
		zap.Int("margin_ratio", ratio),
		zap.String("amount", req.Amount.String()),
		zap.String("asset", req.Asset))

	return req, nil
}
