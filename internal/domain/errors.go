package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Account state errors.
var (
	ErrUnknownScope           = errors.New("unknown account scope")
	ErrUnsupportedKind        = errors.New("balance kind not supported by scope")
	ErrUnknownAsset           = errors.New("asset not present in account state")
	ErrUnknownSymbol          = errors.New("symbol not present in account state")
	ErrSymbolRequired         = errors.New("symbol is required for isolated margin")
	ErrHistorySymbolRequired  = errors.New("symbol is required for order history")
	ErrDuplicateOrder         = errors.New("more than one open order matches")
	ErrUnknownEvent           = errors.New("unknown stream event type")
	ErrMalformedEvent         = errors.New("malformed stream event")
	ErrNotIsolatedSymbol      = errors.New("symbol is not an isolated margin pair")
	ErrIsolatedAccountMissing = errors.New("isolated margin account does not exist")
	ErrEngineStopped          = errors.New("engine already stopped")
	ErrNoMarginAccount        = errors.New("scope has no margin account")
)

// Exchange client errors that callers recover from.
var (
	ErrPairNotFound = errors.New("isolated margin pair not found")
	ErrPairDelisted = errors.New("isolated margin pair delisted")
)

// Risk errors.
var (
	ErrInvalidSide         = errors.New("side must be BUY or SELL")
	ErrStopOrientation     = errors.New("stop is on the wrong side of entry")
	ErrRiskOutOfRange      = errors.New("risk percent out of range")
	ErrShortWithoutMargin  = errors.New("sell requires margin")
	ErrNonPositive         = errors.New("value must be positive")
	ErrInvalidMarginRatio  = errors.New("margin ratio must be greater than 1")
	ErrInvalidTargetMargin = errors.New("target margin level must be greater than 1")
)

// AccountError invalid account parameters, unknown scope/asset/symbol, integrity violations
// and wire protocol drift. Err holds the sentinel reason.
type AccountError struct {
	Op     string
	Scope  AccountScope
	Symbol Symbol
	Asset  string
	Kind   BalanceKind
	Detail string
	Err    error
}

func (e *AccountError) Error() string {
	var b strings.Builder
	b.WriteString("account")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())

	var fields []string
	if e.Scope != "" {
		fields = append(fields, "scope="+e.Scope.String())
	}
	if e.Symbol != "" {
		fields = append(fields, "symbol="+e.Symbol.String())
	}
	if e.Asset != "" {
		fields = append(fields, "asset="+e.Asset)
	}
	if e.Kind != "" {
		fields = append(fields, "kind="+string(e.Kind))
	}
	if e.Detail != "" {
		fields = append(fields, e.Detail)
	}
	if len(fields) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(fields, ", "))
		b.WriteString(")")
	}

	return b.String()
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// IsAccountError reports whether err carries an AccountError.
func IsAccountError(err error) bool {
	var accErr *AccountError
	return errors.As(err, &accErr)
}

// ClientError failure returned by the exchange API.
type ClientError struct {
	Op   string
	Code int64
	Err  error
}

func (e *ClientError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange %s: code %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("exchange %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// RiskError invalid position sizing or margin preconditions.
type RiskError struct {
	Param  string
	Value  string
	Detail string
	Err    error
}

func (e *RiskError) Error() string {
	msg := fmt.Sprintf("risk: %v: %s=%s", e.Err, e.Param, e.Value)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *RiskError) Unwrap() error {
	return e.Err
}
