package account

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/marginbook/internal/domain"
	exchangeMock "github.com/vadiminshakov/marginbook/mocks/exchange"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func TestSeeder_Seed(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	spotOrder := domain.Order{ID: 1, Symbol: "ETHEUR", Scope: domain.ScopeSpot, Status: domain.OrderStatusOpen}
	marginOrder := domain.Order{ID: 2, Symbol: "BTCUSDT", Scope: domain.ScopeMargin, Status: domain.OrderStatusOpen}
	isolatedOrder := domain.Order{ID: 3, Symbol: "ADAEUR", Scope: domain.ScopeIsolated, Status: domain.OrderStatusOpen}

	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance{{Asset: "EUR", Free: d("10")}}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("")).Return([]domain.Order{spotOrder}, nil).Once()
	ex.On("MarginAccount", mock.Anything).
		Return(domain.MarginAccount{MarginLevel: d("2.5")}, []domain.Balance{{Asset: "BTC", Free: d("1")}}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("")).Return([]domain.Order{marginOrder}, nil).Once()
	ex.On("IsolatedMarginSymbols", mock.Anything).
		Return([]domain.IsolatedMarginPair{{Symbol: "ADAEUR", BaseAsset: "ADA", QuoteAsset: "EUR"}}, nil).Once()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order{isolatedOrder}, nil).Once()

	snap, err := NewSeeder(ex, SeedOptions{}, zap.NewNop()).Seed(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Spot, 1)
	assert.Len(t, snap.Margin, 1)
	assert.Equal(t, "2.5", snap.MarginAccount.MarginLevel.String())
	assert.Len(t, snap.IsolatedSymbols, 1)
	require.Len(t, snap.Isolated, 1)
	assert.Equal(t, domain.Symbol("ADAEUR"), snap.Isolated[0].Symbol)
	assert.ElementsMatch(t, []domain.Order{spotOrder, marginOrder, isolatedOrder}, snap.OpenOrders)
}

func TestSeeder_ReportsEveryFailure(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), errors.New("spot down")).Once()
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), errors.New("margin down")).Once()
	ex.On("OpenOrders", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Order(nil), nil).Maybe()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Maybe()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount(nil), nil).Maybe()

	snap, err := NewSeeder(ex, SeedOptions{Workers: 1}, zap.NewNop()).Seed(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, err.Error(), "seed spot balances: spot down")
	assert.Contains(t, err.Error(), "seed margin account: margin down")
}

func TestSeeder_CreatesMissingIsolatedAccounts(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("")).Return([]domain.Order(nil), nil).Once()
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("")).Return([]domain.Order(nil), nil).Once()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Once()

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR"), domain.Symbol("XRPEUR")).
		Return([]domain.IsolatedAccount(nil), nil).Once()
	ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("ADAEUR")).Return(nil).Once()
	ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("XRPEUR")).
		Return(errors.Wrap(domain.ErrPairNotFound, "create")).Once()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Once()

	opts := SeedOptions{IsolatedSymbols: []domain.Symbol{"ADAEUR", "XRPEUR"}, CreateMissing: true}
	snap, err := NewSeeder(ex, opts, zap.NewNop()).Seed(context.Background())
	require.NoError(t, err, "pairs that cannot be created are skipped")
	require.Len(t, snap.Isolated, 1)
}

func TestSeeder_CreateFailureIsReported(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), nil).Maybe()
	ex.On("OpenOrders", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Order(nil), nil).Maybe()
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), nil).Maybe()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Maybe()
	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount(nil), nil).Once()
	ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("ADAEUR")).
		Return(&domain.ClientError{Op: "create", Code: -3006, Err: errors.New("borrow limit")}).Once()

	opts := SeedOptions{IsolatedSymbols: []domain.Symbol{"ADAEUR"}, CreateMissing: true}
	_, err := NewSeeder(ex, opts, zap.NewNop()).Seed(context.Background())
	require.Error(t, err)

	var clientErr *domain.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, int64(-3006), clientErr.Code)
	assert.Contains(t, err.Error(), "create isolated margin account ADAEUR")
}

func TestSeeder_SingleWorkerWithIsolatedAccounts(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	dot := adaAccount()
	dot.Symbol = "DOTEUR"
	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), nil).Once()
	ex.On("OpenOrders", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Order(nil), nil).Times(4)
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), nil).Once()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Once()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount{adaAccount(), dot}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := NewSeeder(ex, SeedOptions{Workers: 1}, zap.NewNop()).Seed(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("seeding with a single worker did not finish")
	}
}

func TestSeeder_IsolatedOrderFailure(t *testing.T) {
	ex := exchangeMock.NewExchange(t)

	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), nil).Maybe()
	ex.On("OpenOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("")).Return([]domain.Order(nil), nil).Maybe()
	ex.On("OpenOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("")).Return([]domain.Order(nil), nil).Maybe()
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), nil).Maybe()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Maybe()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).
		Return([]domain.Order(nil), errors.New("rate limited")).Once()

	_, err := NewSeeder(ex, SeedOptions{}, zap.NewNop()).Seed(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1, "the failed nested group is reported once")
	assert.Contains(t, err.Error(), "seed isolated open orders ADAEUR: rate limited")
}
