package account

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/marginbook/internal/domain"
	exchangeMock "github.com/vadiminshakov/marginbook/mocks/exchange"
)

func TestExchangeHistory(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	h := NewExchangeHistory(ex, seededStore())
	ctx := context.Background()

	ex.On("AllOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("ADAEUR")).Return([]domain.Order{
		{ID: 9, Symbol: "ADAEUR", Scope: domain.ScopeSpot, Status: domain.OrderStatusFilled},
	}, nil).Once()
	ex.On("AllOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Once()
	ex.On("AllOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order{
		{ID: 4, Symbol: "ADAEUR", Scope: domain.ScopeIsolated, Status: domain.OrderStatusCancelled},
	}, nil).Once()

	list, err := h.Orders(ctx, "ADAEUR")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(4), list[0].ID)
	assert.Equal(t, domain.ScopeIsolated, list[0].Scope)
	assert.Equal(t, int64(9), list[1].ID)
}

func TestExchangeHistory_NoIsolatedAccount(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	h := NewExchangeHistory(ex, seededStore())

	// BTCUSDT is eligible but has no isolated account, so only two scopes are queried
	ex.On("AllOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("BTCUSDT")).Return([]domain.Order(nil), nil).Once()
	ex.On("AllOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("BTCUSDT")).
		Return([]domain.Order(nil), &domain.ClientError{Op: "all orders", Code: -1003, Err: errors.New("too many requests")}).Once()

	_, err := h.Orders(context.Background(), "BTCUSDT")
	var clientErr *domain.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, int64(-1003), clientErr.Code)

	_, err = h.Orders(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrHistorySymbolRequired)
	assert.True(t, domain.IsAccountError(err))
}
