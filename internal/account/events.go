package account

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// Binance user data payloads reuse keys that differ only by case ("c"/"C", "s"/"S", "e"/"E"),
// so decoding must never fall back to case-insensitive field matching.
var wireJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

const (
	eventExecutionReport  = "executionReport"
	eventAccountPosition  = "outboundAccountPosition"
	eventBalanceUpdate    = "balanceUpdate"
	eventListStatus       = "listStatus"
	eventError            = "error"
	binanceExchangeName   = "binance"
	binanceNullCommission = "null"
)

type eventHeader struct {
	Type string `json:"e"`
	Time int64  `json:"E"`
}

type executionReport struct {
	Type                    string          `json:"e"`
	Time                    int64           `json:"E"`
	Symbol                  string          `json:"s"`
	ClientOrderID           string          `json:"c"`
	Side                    string          `json:"S"`
	OrderType               string          `json:"o"`
	Quantity                decimal.Decimal `json:"q"`
	Price                   decimal.Decimal `json:"p"`
	OrigClientOrderID       string          `json:"C"`
	ExecutionType           string          `json:"x"`
	Status                  string          `json:"X"`
	RejectReason            string          `json:"r"`
	OrderID                 int64           `json:"i"`
	LastFilledQuantity      decimal.Decimal `json:"l"`
	FilledQuantity          decimal.Decimal `json:"z"`
	LastFilledPrice         decimal.Decimal `json:"L"`
	Commission              decimal.Decimal `json:"n"`
	CommissionAsset         *string         `json:"N"`
	TransactionTime         int64           `json:"T"`
	TradeID                 int64           `json:"t"`
	CumulativeQuoteQuantity decimal.Decimal `json:"Z"`
}

type accountPosition struct {
	Type       string            `json:"e"`
	Time       int64             `json:"E"`
	LastUpdate int64             `json:"u"`
	Balances   []positionBalance `json:"B"`
}

type positionBalance struct {
	Asset  string          `json:"a"`
	Free   decimal.Decimal `json:"f"`
	Locked decimal.Decimal `json:"l"`
}

type balanceUpdate struct {
	Type      string          `json:"e"`
	Time      int64           `json:"E"`
	Asset     string          `json:"a"`
	Delta     decimal.Decimal `json:"d"`
	ClearTime int64           `json:"T"`
}

type listStatus struct {
	Type              string `json:"e"`
	Time              int64  `json:"E"`
	Symbol            string `json:"s"`
	OrderListID       int64  `json:"g"`
	ContingencyType   string `json:"c"`
	ListStatusType    string `json:"l"`
	ListOrderStatus   string `json:"L"`
	ListClientOrderID string `json:"C"`
}

type streamError struct {
	Type    string `json:"e"`
	Message string `json:"m"`
}

// order converts the report into an engine order for the socket it arrived on.
func (r executionReport) order(route Route) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(r.Status)
	if err != nil {
		return domain.Order{}, err
	}

	side := domain.Side(r.Side)
	if !side.IsValid() {
		return domain.Order{}, domain.ErrInvalidSide
	}

	clientOrderID := r.ClientOrderID
	// cancellations carry the cancel request id in "c" and the original one in "C"
	if status == domain.OrderStatusCancelled && r.OrigClientOrderID != "" {
		clientOrderID = r.OrigClientOrderID
	}

	var commissionAsset string
	if r.CommissionAsset != nil && *r.CommissionAsset != binanceNullCommission {
		commissionAsset = *r.CommissionAsset
	}

	return domain.Order{
		ID:              r.OrderID,
		ClientOrderID:   clientOrderID,
		Exchange:        binanceExchangeName,
		Symbol:          domain.NormalizeSymbol(r.Symbol),
		Scope:           route.Scope,
		Side:            side,
		Type:            domain.OrderType(r.OrderType),
		Status:          status,
		Price:           r.effectivePrice(status),
		Quantity:        r.Quantity,
		Filled:          r.FilledQuantity,
		Commission:      r.Commission,
		CommissionAsset: commissionAsset,
		UpdatedAt:       millisToTime(r.TransactionTime),
	}, nil
}

// effectivePrice filled orders report the average fill price; resting ones their limit price.
// Market orders have no limit price and fall back to the last fill.
func (r executionReport) effectivePrice(status domain.OrderStatus) decimal.Decimal {
	if status == domain.OrderStatusFilled && r.FilledQuantity.IsPositive() && r.CumulativeQuoteQuantity.IsPositive() {
		return r.CumulativeQuoteQuantity.Div(r.FilledQuantity)
	}
	if r.Price.IsPositive() {
		return r.Price
	}
	return r.LastFilledPrice
}

func (p accountPosition) balances() []domain.Balance {
	out := make([]domain.Balance, 0, len(p.Balances))
	for _, b := range p.Balances {
		out = append(out, domain.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked})
	}
	return out
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
