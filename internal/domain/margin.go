package domain

import "github.com/shopspring/decimal"

// DefaultCrossMarginRatio Binance cross margin maximum leverage ratio.
const DefaultCrossMarginRatio = 3

// MarginAccount cross-margin account health. Totals are reported by the exchange in BTC only.
type MarginAccount struct {
	TradeEnabled        bool            `json:"trade_enabled"`
	TransferEnabled     bool            `json:"transfer_enabled"`
	BorrowEnabled       bool            `json:"borrow_enabled"`
	MarginLevel         decimal.Decimal `json:"margin_level"`
	MarginRatio         int             `json:"margin_ratio"`
	TotalAssetOfBTC     decimal.Decimal `json:"total_asset_btc"`
	TotalLiabilityOfBTC decimal.Decimal `json:"total_liability_btc"`
	TotalNetAssetOfBTC  decimal.Decimal `json:"total_net_asset_btc"`
}

// IsolatedMarginPair isolated margin registry entry for one symbol.
type IsolatedMarginPair struct {
	Symbol         Symbol          `json:"symbol"`
	BaseAsset      string          `json:"base_asset"`
	QuoteAsset     string          `json:"quote_asset"`
	Subscribed     bool            `json:"subscribed"`
	AccountCreated bool            `json:"account_created"`
	MarginRatio    int             `json:"margin_ratio"`
	MarginLevel    decimal.Decimal `json:"margin_level"`
}

// IsolatedAccount isolated margin account state as reported by the exchange.
type IsolatedAccount struct {
	Symbol      Symbol
	Created     bool
	MarginRatio int
	MarginLevel decimal.Decimal
	Base        Balance
	Quote       Balance
}
