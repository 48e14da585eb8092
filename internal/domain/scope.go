package domain

import "fmt"

// AccountScope account class a balance or order belongs to.
type AccountScope string

const (
	// ScopeSpot spot wallet.
	ScopeSpot AccountScope = "SPOT"
	// ScopeMargin cross-margin account.
	ScopeMargin AccountScope = "MARGIN"
	// ScopeIsolated isolated-margin account, always paired with a symbol.
	ScopeIsolated AccountScope = "ISOLATED_MARGIN"
)

// String returns the string representation.
func (s AccountScope) String() string {
	return string(s)
}

// IsValid checks if the AccountScope value is valid.
func (s AccountScope) IsValid() bool {
	return s == ScopeSpot || s == ScopeMargin || s == ScopeIsolated
}

// IsMargin reports whether the scope is cross or isolated margin.
func (s AccountScope) IsMargin() bool {
	return s == ScopeMargin || s == ScopeIsolated
}

// Supports reports whether balances of this scope carry the given kind.
func (s AccountScope) Supports(kind BalanceKind) bool {
	switch s {
	case ScopeSpot:
		return kind == BalanceFree || kind == BalanceLocked
	case ScopeMargin:
		return kind.IsValid() && kind != BalanceNetBTC
	case ScopeIsolated:
		return kind.IsValid()
	default:
		return false
	}
}

// ParseAccountScope parses a scope name, accepting the short aliases used in config files.
func ParseAccountScope(raw string) (AccountScope, error) {
	switch raw {
	case "SPOT", "spot":
		return ScopeSpot, nil
	case "MARGIN", "margin", "cross":
		return ScopeMargin, nil
	case "ISOLATED_MARGIN", "isolated_margin", "isolated":
		return ScopeIsolated, nil
	}

	return "", fmt.Errorf("unknown account scope %q", raw)
}

// BalanceKind which component of a balance is requested.
type BalanceKind string

const (
	BalanceFree     BalanceKind = "FREE"
	BalanceLocked   BalanceKind = "LOCKED"
	BalanceBorrowed BalanceKind = "BORROWED"
	BalanceInterest BalanceKind = "INTEREST"
	BalanceNet      BalanceKind = "NET"
	BalanceNetBTC   BalanceKind = "NET_BTC"
)

// IsValid checks if the BalanceKind value is valid.
func (k BalanceKind) IsValid() bool {
	switch k {
	case BalanceFree, BalanceLocked, BalanceBorrowed, BalanceInterest, BalanceNet, BalanceNetBTC:
		return true
	}
	return false
}
