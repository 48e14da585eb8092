package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holdings of one asset inside one account scope.
// Spot balances only populate Free and Locked; cross margin adds Borrowed, Interest and Net;
// isolated margin additionally carries NetBTC.
type Balance struct {
	Asset    string          `json:"asset"`
	Free     decimal.Decimal `json:"free"`
	Locked   decimal.Decimal `json:"locked"`
	Borrowed decimal.Decimal `json:"borrowed"`
	Interest decimal.Decimal `json:"interest"`
	Net      decimal.Decimal `json:"net"`
	NetBTC   decimal.Decimal `json:"net_btc"`
}

// Get returns the requested component.
func (b Balance) Get(kind BalanceKind) decimal.Decimal {
	switch kind {
	case BalanceFree:
		return b.Free
	case BalanceLocked:
		return b.Locked
	case BalanceBorrowed:
		return b.Borrowed
	case BalanceInterest:
		return b.Interest
	case BalanceNet:
		return b.Net
	case BalanceNetBTC:
		return b.NetBTC
	}
	return decimal.Zero
}

// BalanceKey addresses a balance. Symbol is required for isolated margin and ignored otherwise.
type BalanceKey struct {
	Scope  AccountScope
	Symbol Symbol
	Asset  string
}

// BalanceChangeKind how a balance change was produced.
type BalanceChangeKind string

const (
	// BalanceChangeSnapshot absolute free/locked replacement (outboundAccountPosition).
	BalanceChangeSnapshot BalanceChangeKind = "snapshot"
	// BalanceChangeDelta signed free delta (balanceUpdate).
	BalanceChangeDelta BalanceChangeKind = "delta"
)

// BalanceChange is published to balance observers after a change was merged into the store.
type BalanceChange struct {
	Timestamp time.Time         `json:"ts"`
	Kind      BalanceChangeKind `json:"kind"`
	Scope     AccountScope      `json:"scope"`
	Symbol    Symbol            `json:"symbol,omitempty"`
	Asset     string            `json:"asset"`
	Delta     decimal.Decimal   `json:"delta"`
	Balance   Balance           `json:"balance"`
}
