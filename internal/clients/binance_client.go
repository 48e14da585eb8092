// Package clients builds authenticated exchange SDK clients.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a Binance REST client. The testnet switch is global in the SDK
// and must be set before the first client is created.
func NewBinanceClient(apiKey, apiSecret string, testnet bool) *binance.Client {
	binance.UseTestnet = testnet
	client := binance.NewClient(apiKey, apiSecret)
	return client
}
