package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/marginbook/internal/domain"
	exchangeMock "github.com/vadiminshakov/marginbook/mocks/exchange"
	"go.uber.org/zap"
)

func TestIsolated_SubscribeExistingAccount(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	ctx := context.Background()

	resting := domain.Order{ID: 7, Symbol: "ADAEUR", Scope: domain.ScopeIsolated, Side: domain.SideSell, Status: domain.OrderStatusOpen}
	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order{resting}, nil).Once()

	require.NoError(t, e.Subscribe(ctx, "ADAEUR", false))
	require.NoError(t, e.Subscribe(ctx, "ADAEUR", false), "subscribing twice is a no-op")
	assert.Equal(t, 1, streams.openCount(adaRoute))

	pair, ok := e.Store().IsolatedPair("ADAEUR")
	require.True(t, ok)
	assert.True(t, pair.Subscribed)
	assert.True(t, pair.AccountCreated)

	free, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeIsolated, Symbol: "ADAEUR", Asset: "ADA"}, domain.BalanceFree)
	require.NoError(t, err)
	assert.Equal(t, "100", free.String())

	_, ok = e.Store().Order(resting.Key())
	assert.True(t, ok)

	require.NoError(t, streams.deliver(adaRoute, `{"e":"balanceUpdate","E":1,"a":"ADA","d":"-40","T":1}`))
	free, err = e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeIsolated, Symbol: "ADAEUR", Asset: "ADA"}, domain.BalanceFree)
	require.NoError(t, err)
	assert.Equal(t, "60", free.String())
}

func TestIsolated_SubscribeRejections(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	e := newTestEngine(t, ex, newFakeStreams(), Options{})
	ctx := context.Background()

	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair{
		{Symbol: "ADAEUR", BaseAsset: "ADA", QuoteAsset: "EUR"},
	}, nil).Once()
	err := e.Subscribe(ctx, "XRPEUR", true)
	assert.ErrorIs(t, err, domain.ErrNotIsolatedSymbol)
	assert.True(t, domain.IsAccountError(err))

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("DOTEUR")).Return([]domain.IsolatedAccount(nil), nil).Once()
	err = e.Subscribe(ctx, "DOTEUR", false)
	assert.ErrorIs(t, err, domain.ErrIsolatedAccountMissing)
}

func TestIsolated_SubscribePairListedAfterSeeding(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()

	var listed []domain.Symbol
	expectSeed(ex)
	e, err := NewEngine(context.Background(), ex, streams, Options{
		Isolated: IsolatedOptions{
			Sleeper:      noSleep,
			OnPairListed: func(s domain.Symbol) { listed = append(listed, s) },
		},
	}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, e.Store().IsIsolatedEligible("SOLEUR"))

	sol := domain.IsolatedAccount{
		Symbol:  "SOLEUR",
		Created: true,
		Base:    domain.Balance{Asset: "SOL", Free: d("3")},
		Quote:   domain.Balance{Asset: "EUR"},
	}
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair{
		{Symbol: "ADAEUR", BaseAsset: "ADA", QuoteAsset: "EUR"},
		{Symbol: "SOLEUR", BaseAsset: "SOL", QuoteAsset: "EUR"},
	}, nil).Once()
	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("SOLEUR")).Return([]domain.IsolatedAccount{sol}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("SOLEUR")).Return([]domain.Order(nil), nil).Once()

	require.NoError(t, e.Subscribe(context.Background(), "SOLEUR", false))
	assert.True(t, e.Store().IsIsolatedEligible("SOLEUR"))
	assert.Equal(t, []domain.Symbol{"SOLEUR"}, listed, "only newly listed pairs are reported")
	assert.Equal(t, []domain.Symbol{"SOLEUR"}, e.Isolated().Subscribed())

	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), errors.New("api down")).Once()
	err = e.Subscribe(context.Background(), "XRPEUR", false)
	assert.ErrorContains(t, err, "refresh isolated margin pairs")
}

func TestIsolated_CreateAndSettle(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()

	var (
		mu     sync.Mutex
		slept  []time.Duration
		marked []domain.Symbol
	)
	expectSeed(ex)
	e, err := NewEngine(context.Background(), ex, streams, Options{
		Isolated: IsolatedOptions{
			SettleInterval: 100 * time.Millisecond,
			SettleMaxWait:  5 * time.Second,
			Sleeper: func(_ context.Context, d time.Duration) error {
				mu.Lock()
				slept = append(slept, d)
				mu.Unlock()
				return nil
			},
			OnAccountCreated: func(s domain.Symbol) { marked = append(marked, s) },
		},
	}, zap.NewNop())
	require.NoError(t, err)

	dot := domain.IsolatedAccount{
		Symbol:  "DOTEUR",
		Created: true,
		Base:    domain.Balance{Asset: "DOT"},
		Quote:   domain.Balance{Asset: "EUR"},
	}
	// missing before creation, then invisible twice while the exchange settles
	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("DOTEUR")).Return([]domain.IsolatedAccount(nil), nil).Times(3)
	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("DOTEUR")).Return([]domain.IsolatedAccount{dot}, nil).Once()
	ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("DOTEUR")).Return(nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("DOTEUR")).Return([]domain.Order(nil), nil).Once()

	require.NoError(t, e.Subscribe(context.Background(), "DOTEUR", true))

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, slept,
		"settle delay before the first poll, then polls back off")
	assert.Equal(t, []domain.Symbol{"DOTEUR"}, marked)
	assert.Equal(t, []domain.Symbol{"DOTEUR"}, e.Isolated().Subscribed())
	assert.Equal(t, 1, streams.openCount(Route{Scope: domain.ScopeIsolated, Symbol: "DOTEUR"}))
}

func TestIsolated_SettleTimeout(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	expectSeed(ex)
	e, err := NewEngine(context.Background(), ex, streams, Options{
		Isolated: IsolatedOptions{SettleInterval: time.Second, SettleMaxWait: 3 * time.Second, Sleeper: noSleep},
	}, zap.NewNop())
	require.NoError(t, err)

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("DOTEUR")).Return([]domain.IsolatedAccount(nil), nil)
	ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("DOTEUR")).Return(nil).Once()

	err = e.Subscribe(context.Background(), "DOTEUR", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait for isolated margin account DOTEUR")
	assert.Equal(t, 0, streams.openCount(Route{Scope: domain.ScopeIsolated, Symbol: "DOTEUR"}))
}

func TestIsolated_CreationFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "pair not found is skipped", err: domain.ErrPairNotFound},
		{name: "delisted pair is skipped", err: errors.Wrap(domain.ErrPairDelisted, "exchange")},
		{name: "other failures are returned", err: &domain.ClientError{Op: "create", Code: -1003, Err: errors.New("too many requests")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := exchangeMock.NewExchange(t)
			streams := newFakeStreams()
			e := newTestEngine(t, ex, streams, Options{})

			ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("DOTEUR")).Return([]domain.IsolatedAccount(nil), nil).Once()
			ex.On("CreateIsolatedMarginAccount", mock.Anything, domain.Symbol("DOTEUR")).Return(tt.err).Once()

			err := e.Subscribe(context.Background(), "DOTEUR", true)
			if tt.wantErr {
				var clientErr *domain.ClientError
				require.ErrorAs(t, err, &clientErr)
				assert.Equal(t, int64(-1003), clientErr.Code)
			} else {
				require.NoError(t, err)
			}
			assert.Empty(t, e.Isolated().Subscribed())
			assert.Equal(t, 0, streams.openCount(Route{Scope: domain.ScopeIsolated, Symbol: "DOTEUR"}))
		})
	}
}

func TestIsolated_UnsubscribeKeepsBalancesAndDropsInFlightEvents(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	ctx := context.Background()

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount{adaAccount()}, nil).Twice()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Twice()

	require.NoError(t, e.Subscribe(ctx, "ADAEUR", false))
	require.NoError(t, e.Unsubscribe("ADAEUR"))

	assert.True(t, streams.stream(adaRoute).isClosed())
	pair, ok := e.Store().IsolatedPair("ADAEUR")
	require.True(t, ok)
	assert.False(t, pair.Subscribed)

	// an event already read from the detached connection
	require.NoError(t, streams.deliver(adaRoute, `{"e":"balanceUpdate","E":1,"a":"ADA","d":"1000","T":1}`))
	free, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeIsolated, Symbol: "ADAEUR", Asset: "ADA"}, domain.BalanceFree)
	require.NoError(t, err, "balances are retained after unsubscribe")
	assert.Equal(t, "100", free.String())

	// resubscribing attaches a fresh connection
	require.NoError(t, e.Subscribe(ctx, "ADAEUR", false))
	assert.Equal(t, 2, streams.openCount(adaRoute))
}

func TestIsolated_ConcurrentUnsubscribeAndEvents(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Once()
	require.NoError(t, e.Subscribe(context.Background(), "ADAEUR", false))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = streams.deliver(adaRoute, `{"e":"balanceUpdate","E":1,"a":"ADA","d":"1","T":1}`)
		}
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, e.Unsubscribe("ADAEUR"))
	}()
	wg.Wait()

	before, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeIsolated, Symbol: "ADAEUR", Asset: "ADA"}, domain.BalanceFree)
	require.NoError(t, err)
	require.NoError(t, streams.deliver(adaRoute, `{"e":"balanceUpdate","E":1,"a":"ADA","d":"1","T":1}`))
	after, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeIsolated, Symbol: "ADAEUR", Asset: "ADA"}, domain.BalanceFree)
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "no event applies once unsubscribe returned")
	assert.True(t, before.LessThanOrEqual(d("300")))
}
