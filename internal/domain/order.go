package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side order side.
type Side string

const (
	// SideNone no side, used by price conversions that want the last trade price.
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid checks if the side is BUY or SELL.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType exchange order type, kept as the exchange spells it (LIMIT, MARKET, STOP_LOSS_LIMIT, ...).
type OrderType string

// OrderStatus lifecycle status tracked by the engine.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// ParseOrderStatus maps exchange wire statuses onto the tracked lifecycle.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch raw {
	case "NEW", "PENDING_NEW", "OPEN":
		return OrderStatusOpen, nil
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled, nil
	case "FILLED":
		return OrderStatusFilled, nil
	case "CANCELED", "CANCELLED", "PENDING_CANCEL", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return OrderStatusCancelled, nil
	}

	return "", fmt.Errorf("unknown order status %q", raw)
}

// OrderKey identity of an order: exchange order ids are unique per symbol.
type OrderKey struct {
	Symbol Symbol
	ID     int64
}

// String returns the string representation.
func (k OrderKey) String() string {
	return fmt.Sprintf("%s#%d", k.Symbol, k.ID)
}

// Order exchange order as tracked by the engine.
type Order struct {
	ID              int64           `json:"id"`
	ClientOrderID   string          `json:"client_order_id,omitempty"`
	Exchange        string          `json:"exchange"`
	Symbol          Symbol          `json:"symbol"`
	Scope           AccountScope    `json:"scope"`
	Side            Side            `json:"side"`
	Type            OrderType       `json:"type"`
	Status          OrderStatus     `json:"status"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Filled          decimal.Decimal `json:"filled"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Key returns the order identity.
func (o Order) Key() OrderKey {
	return OrderKey{Symbol: o.Symbol, ID: o.ID}
}

// IsOpen reports whether the order still rests on the book.
func (o Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// Equal compares orders on id, side, exchange, type, price, status, symbol, quantity and filled quantity.
func (o Order) Equal(other Order) bool {
	return o.ID == other.ID &&
		o.Side == other.Side &&
		o.Exchange == other.Exchange &&
		o.Type == other.Type &&
		o.Price.Equal(other.Price) &&
		o.Status == other.Status &&
		o.Symbol == other.Symbol &&
		o.Quantity.Equal(other.Quantity) &&
		o.Filled.Equal(other.Filled)
}

// String returns a human-readable string representation.
func (o Order) String() string {
	return fmt.Sprintf("%s %s %s %s %s@%s status=%s filled=%s",
		o.Scope, o.Key(), o.Side, o.Type, o.Quantity.String(), o.Price.String(), o.Status, o.Filled.String())
}
