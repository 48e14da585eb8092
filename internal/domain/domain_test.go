package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected Symbol
	}{
		{input: "ADAEUR", expected: "ADAEUR"},
		{input: "ada/eur", expected: "ADAEUR"},
		{input: "ada_eur", expected: "ADAEUR"},
		{input: " ADA-EUR ", expected: "ADAEUR"},
		{input: "ada eur", expected: "ADAEUR"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSymbol(tt.input))
		})
	}
}

func TestNewPair(t *testing.T) {
	p, err := NewPair("btc_usdt")
	require.NoError(t, err)
	assert.Equal(t, Pair{From: "BTC", To: "USDT"}, p)
	assert.Equal(t, "BTC_USDT", p.String())
	assert.Equal(t, Symbol("BTCUSDT"), p.Symbol())

	p, err = NewPair("ETH/BTC")
	require.NoError(t, err)
	assert.Equal(t, Symbol("ETHBTC"), p.Symbol())

	for _, raw := range []string{"BTCUSDT", "BTC_", "_USDT", "A_B_C"} {
		_, err := NewPair(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected OrderStatus
	}{
		{raw: "NEW", expected: OrderStatusOpen},
		{raw: "PENDING_NEW", expected: OrderStatusOpen},
		{raw: "PARTIALLY_FILLED", expected: OrderStatusPartiallyFilled},
		{raw: "FILLED", expected: OrderStatusFilled},
		{raw: "CANCELED", expected: OrderStatusCancelled},
		{raw: "REJECTED", expected: OrderStatusCancelled},
		{raw: "EXPIRED", expected: OrderStatusCancelled},
		{raw: "EXPIRED_IN_MATCH", expected: OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			status, err := ParseOrderStatus(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}

	_, err := ParseOrderStatus("TRADE")
	assert.Error(t, err)

	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPartiallyFilled.IsTerminal())
	assert.False(t, OrderStatusOpen.IsTerminal())
}

func TestOrder_Equal(t *testing.T) {
	o := Order{
		ID:       7,
		Symbol:   "ADAEUR",
		Side:     SideBuy,
		Type:     "LIMIT",
		Status:   OrderStatusOpen,
		Price:    decimal.RequireFromString("0.50"),
		Quantity: decimal.RequireFromString("100"),
		Filled:   decimal.Zero,
	}

	same := o
	same.Price = decimal.RequireFromString("0.5")
	same.Commission = decimal.RequireFromString("0.1")
	assert.True(t, o.Equal(same), "scale and commission do not matter")

	filled := o
	filled.Filled = decimal.RequireFromString("10")
	assert.False(t, o.Equal(filled))

	assert.Equal(t, OrderKey{Symbol: "ADAEUR", ID: 7}, o.Key())
	assert.Equal(t, "ADAEUR#7", o.Key().String())
	assert.True(t, o.IsOpen())
}

func TestAccountScope(t *testing.T) {
	assert.True(t, ScopeSpot.Supports(BalanceFree))
	assert.True(t, ScopeSpot.Supports(BalanceLocked))
	assert.False(t, ScopeSpot.Supports(BalanceBorrowed))
	assert.False(t, ScopeSpot.Supports(BalanceNet))

	assert.True(t, ScopeMargin.Supports(BalanceInterest))
	assert.True(t, ScopeMargin.Supports(BalanceNet))
	assert.False(t, ScopeMargin.Supports(BalanceNetBTC))

	assert.True(t, ScopeIsolated.Supports(BalanceNetBTC))
	assert.False(t, ScopeIsolated.Supports("TOTAL"))
	assert.False(t, AccountScope("FUTURES").Supports(BalanceFree))

	assert.False(t, ScopeSpot.IsMargin())
	assert.True(t, ScopeIsolated.IsMargin())

	for raw, expected := range map[string]AccountScope{
		"spot":            ScopeSpot,
		"cross":           ScopeMargin,
		"MARGIN":          ScopeMargin,
		"isolated":        ScopeIsolated,
		"ISOLATED_MARGIN": ScopeIsolated,
	} {
		scope, err := ParseAccountScope(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, expected, scope, raw)
	}

	_, err := ParseAccountScope("futures")
	assert.Error(t, err)
}

func TestBalance_Get(t *testing.T) {
	b := Balance{
		Asset:    "BTC",
		Free:     decimal.NewFromInt(1),
		Locked:   decimal.NewFromInt(2),
		Borrowed: decimal.NewFromInt(3),
		Interest: decimal.NewFromInt(4),
		Net:      decimal.NewFromInt(5),
		NetBTC:   decimal.NewFromInt(6),
	}

	assert.True(t, b.Get(BalanceFree).Equal(decimal.NewFromInt(1)))
	assert.True(t, b.Get(BalanceLocked).Equal(decimal.NewFromInt(2)))
	assert.True(t, b.Get(BalanceBorrowed).Equal(decimal.NewFromInt(3)))
	assert.True(t, b.Get(BalanceInterest).Equal(decimal.NewFromInt(4)))
	assert.True(t, b.Get(BalanceNet).Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Get(BalanceNetBTC).Equal(decimal.NewFromInt(6)))
	assert.True(t, b.Get("TOTAL").IsZero())
}

func TestDigitsFromStep(t *testing.T) {
	tests := []struct {
		step     string
		expected int32
	}{
		{step: "0.00100000", expected: 3},
		{step: "0.1", expected: 1},
		{step: "0.5", expected: 1},
		{step: "1.00000000", expected: 0},
		{step: "10", expected: 0},
		{step: "0", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			assert.Equal(t, tt.expected, DigitsFromStep(decimal.RequireFromString(tt.step)))
		})
	}
}

func TestAccountError(t *testing.T) {
	err := &AccountError{Op: "balance", Scope: ScopeSpot, Asset: "ADA", Err: ErrUnknownAsset}
	assert.Equal(t, "account balance: asset not present in account state (scope=SPOT, asset=ADA)", err.Error())

	wrapped := errors.Wrap(err, "value")
	assert.True(t, IsAccountError(wrapped))
	assert.ErrorIs(t, wrapped, ErrUnknownAsset)
	assert.False(t, IsAccountError(ErrUnknownAsset))

	bare := &AccountError{Err: ErrUnknownScope}
	assert.Equal(t, "account: unknown account scope", bare.Error())
}

func TestClientAndRiskError(t *testing.T) {
	cerr := &ClientError{Op: "open orders", Code: -1121, Err: errors.New("Invalid symbol.")}
	assert.Equal(t, "exchange open orders: code -1121: Invalid symbol.", cerr.Error())
	assert.Equal(t, "exchange account: boom", (&ClientError{Op: "account", Err: errors.New("boom")}).Error())

	rerr := &RiskError{Param: "risk_percent", Value: "150", Detail: "must be within (0, 100]", Err: ErrRiskOutOfRange}
	assert.Equal(t, "risk: risk percent out of range: risk_percent=150 (must be within (0, 100])", rerr.Error())
	assert.ErrorIs(t, rerr, ErrRiskOutOfRange)
}
