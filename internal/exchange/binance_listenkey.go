package exchange

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/account"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// ListenKeys manages user-data stream listen keys for a route.
type ListenKeys interface {
	Start(ctx context.Context, route account.Route) (string, error)
	Keepalive(ctx context.Context, route account.Route, key string) error
	Close(ctx context.Context, route account.Route, key string) error
}

// BinanceListenKeys issues listen keys through the spot, cross margin and isolated margin
// user stream endpoints.
type BinanceListenKeys struct {
	client *binance.Client
}

// NewBinanceListenKeys creates a listen key manager.
func NewBinanceListenKeys(client *binance.Client) *BinanceListenKeys {
	return &BinanceListenKeys{client: client}
}

// Start issues a new listen key.
func (k *BinanceListenKeys) Start(ctx context.Context, route account.Route) (string, error) {
	var (
		key string
		err error
	)
	switch route.Scope {
	case domain.ScopeSpot:
		key, err = k.client.NewStartUserStreamService().Do(ctx)
	case domain.ScopeMargin:
		key, err = k.client.NewStartMarginUserStreamService().Do(ctx)
	case domain.ScopeIsolated:
		key, err = k.client.NewStartIsolatedMarginUserStreamService().Symbol(route.Symbol.String()).Do(ctx)
	default:
		return "", errors.Wrapf(domain.ErrUnknownScope, "listen key for %s", route)
	}
	if err != nil {
		return "", mapAPIError("start listen key "+route.String(), err)
	}
	return key, nil
}

// Keepalive extends the key's validity, Binance expires idle keys after 60 minutes.
func (k *BinanceListenKeys) Keepalive(ctx context.Context, route account.Route, key string) error {
	var err error
	switch route.Scope {
	case domain.ScopeSpot:
		err = k.client.NewKeepaliveUserStreamService().ListenKey(key).Do(ctx)
	case domain.ScopeMargin:
		err = k.client.NewKeepaliveMarginUserStreamService().ListenKey(key).Do(ctx)
	case domain.ScopeIsolated:
		err = k.client.NewKeepaliveIsolatedMarginUserStreamService().Symbol(route.Symbol.String()).ListenKey(key).Do(ctx)
	default:
		return errors.Wrapf(domain.ErrUnknownScope, "keepalive for %s", route)
	}
	if err != nil {
		return mapAPIError("keepalive listen key "+route.String(), err)
	}
	return nil
}

// Close invalidates the key.
func (k *BinanceListenKeys) Close(ctx context.Context, route account.Route, key string) error {
	var err error
	switch route.Scope {
	case domain.ScopeSpot:
		err = k.client.NewCloseUserStreamService().ListenKey(key).Do(ctx)
	case domain.ScopeMargin:
		err = k.client.NewCloseMarginUserStreamService().ListenKey(key).Do(ctx)
	case domain.ScopeIsolated:
		err = k.client.NewCloseIsolatedMarginUserStreamService().Symbol(route.Symbol.String()).ListenKey(key).Do(ctx)
	default:
		return errors.Wrapf(domain.ErrUnknownScope, "close listen key for %s", route)
	}
	if err != nil {
		return mapAPIError("close listen key "+route.String(), err)
	}
	return nil
}
