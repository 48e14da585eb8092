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
	"go.uber.org/zap"
)

var (
	spotRoute   = Route{Scope: domain.ScopeSpot}
	marginRoute = Route{Scope: domain.ScopeMargin}
	adaRoute    = Route{Scope: domain.ScopeIsolated, Symbol: "ADAEUR"}
)

func noSleep(context.Context, time.Duration) error { return nil }

// expectSeed mocks the REST calls made while seeding.
func expectSeed(ex *exchangeMock.Exchange) {
	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance{{Asset: "EUR", Free: d("1000")}}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeSpot, domain.Symbol("")).Return([]domain.Order(nil), nil).Once()
	ex.On("MarginAccount", mock.Anything).
		Return(domain.MarginAccount{MarginLevel: d("999"), TotalNetAssetOfBTC: d("0.1")}, []domain.Balance{{Asset: "BTC", Free: d("0.1")}}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeMargin, domain.Symbol("")).Return([]domain.Order(nil), nil).Once()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair{
		{Symbol: "ADAEUR", BaseAsset: "ADA", QuoteAsset: "EUR"},
		{Symbol: "DOTEUR", BaseAsset: "DOT", QuoteAsset: "EUR"},
	}, nil).Once()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount(nil), nil).Once()
}

func adaAccount() domain.IsolatedAccount {
	return domain.IsolatedAccount{
		Symbol:      "ADAEUR",
		Created:     true,
		MarginRatio: 5,
		MarginLevel: d("999"),
		Base:        domain.Balance{Asset: "ADA", Free: d("100")},
		Quote:       domain.Balance{Asset: "EUR", Free: d("50")},
	}
}

func newTestEngine(t *testing.T, ex *exchangeMock.Exchange, streams StreamFactory, opts Options) *Engine {
	t.Helper()
	expectSeed(ex)
	opts.Isolated.Sleeper = noSleep
	e, err := NewEngine(context.Background(), ex, streams, opts, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestNewEngine_SeedFailureIsFatal(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	ex.On("SpotBalances", mock.Anything).Return([]domain.Balance(nil), errors.New("api down")).Maybe()
	ex.On("OpenOrders", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Order(nil), nil).Maybe()
	ex.On("MarginAccount", mock.Anything).Return(domain.MarginAccount{}, []domain.Balance(nil), errors.New("margin down")).Maybe()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair(nil), nil).Maybe()
	ex.On("IsolatedMarginAccounts", mock.Anything).Return([]domain.IsolatedAccount(nil), nil).Maybe()

	e, err := NewEngine(context.Background(), ex, newFakeStreams(), Options{Seed: SeedOptions{Workers: 1}}, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, e)
	assert.Contains(t, err.Error(), "api down")
}

func TestEngine_StartStop(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()), "second start is a no-op")
	assert.Equal(t, 1, streams.openCount(spotRoute))
	assert.Equal(t, 1, streams.openCount(marginRoute))

	require.NoError(t, e.Stop())
	assert.True(t, streams.stream(spotRoute).isClosed())
	assert.True(t, streams.stream(marginRoute).isClosed())

	assert.ErrorIs(t, e.Stop(), domain.ErrEngineStopped)
	assert.ErrorIs(t, e.Start(context.Background()), domain.ErrEngineStopped)
	assert.ErrorIs(t, e.Subscribe(context.Background(), "ADAEUR", false), domain.ErrEngineStopped)

	_, open := <-e.Errors()
	assert.False(t, open, "errors channel is closed on stop")
}

func TestEngine_EventsFlowIntoStore(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	var seen []domain.BalanceChange
	h := e.OnBalance(func(c domain.BalanceChange) { seen = append(seen, c) })

	require.NoError(t, streams.deliver(spotRoute, `{"e":"balanceUpdate","E":1,"a":"EUR","d":"25","T":1}`))

	free, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeSpot, Asset: "EUR"}, domain.BalanceFree)
	require.NoError(t, err)
	assert.Equal(t, "1025", free.String())
	require.Len(t, seen, 1)

	assert.True(t, e.Deregister(h))
	require.NoError(t, streams.deliver(spotRoute, `{"e":"balanceUpdate","E":2,"a":"EUR","d":"1","T":2}`))
	assert.Len(t, seen, 1, "deregistered callbacks are not called")
}

func TestEngine_UnknownEventClosesScope(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	require.NoError(t, streams.deliver(marginRoute, `{"e":"somethingNew","E":1}`))

	select {
	case err := <-e.Errors():
		assert.ErrorIs(t, err, domain.ErrUnknownEvent)
	case <-time.After(time.Second):
		t.Fatal("expected a scope failure")
	}
	assert.True(t, streams.stream(marginRoute).isClosed())
	assert.False(t, streams.stream(spotRoute).isClosed(), "other scopes keep running")

	// later events on the failed socket are dropped
	require.NoError(t, streams.deliver(marginRoute, `{"e":"balanceUpdate","E":1,"a":"BTC","d":"5","T":1}`))
	free, err := e.Store().Balance(domain.BalanceKey{Scope: domain.ScopeMargin, Asset: "BTC"}, domain.BalanceFree)
	require.NoError(t, err)
	assert.Equal(t, "0.1", free.String())
}

func TestEngine_ErrorEventReconnectsOnlyThatSocket(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	require.NoError(t, streams.deliver(spotRoute, `{"e":"error","m":"boom"}`))

	assert.Equal(t, 1, streams.stream(spotRoute).reconnectCount())
	assert.Equal(t, 0, streams.stream(marginRoute).reconnectCount())
	assert.False(t, streams.stream(spotRoute).isClosed())
}

func TestEngine_DuplicateFillIsFatalForScope(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	dup := domain.Order{ID: 42, Symbol: "ADAEUR", Scope: domain.ScopeSpot, Side: domain.SideBuy, Status: domain.OrderStatusOpen}
	e.Store().seedOpenOrders([]domain.Order{dup})
	e.Store().mu.Lock()
	e.Store().open = append(e.Store().open, dup)
	e.Store().mu.Unlock()

	require.NoError(t, streams.deliver(spotRoute, executionReportJSON("ADAEUR", 42, "FILLED", "BUY")))

	select {
	case err := <-e.Errors():
		assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	case <-time.After(time.Second):
		t.Fatal("expected a scope failure")
	}
	assert.True(t, streams.stream(spotRoute).isClosed())
}

func TestEngine_StartSubscribesConfiguredSymbols(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{Seed: SeedOptions{IsolatedSymbols: []domain.Symbol{"ADAEUR", "XRPEUR"}}})

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount{adaAccount()}, nil).Once()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Once()
	ex.On("IsolatedMarginSymbols", mock.Anything).Return([]domain.IsolatedMarginPair{
		{Symbol: "ADAEUR", BaseAsset: "ADA", QuoteAsset: "EUR"},
	}, nil).Once()

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.Equal(t, []domain.Symbol{"ADAEUR"}, e.Isolated().Subscribed())

	select {
	case err := <-e.Errors():
		assert.ErrorIs(t, err, domain.ErrNotIsolatedSymbol, "XRPEUR is not an isolated pair")
	default:
		t.Fatal("expected the XRPEUR failure on the errors channel")
	}
}

// runWithin fails the test when fn does not return in time.
func runWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return, callback reentrancy deadlocked")
	}
}

func TestEngine_UnsubscribeFromOrderCallback(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	ctx := context.Background()

	ex.On("IsolatedMarginAccounts", mock.Anything, domain.Symbol("ADAEUR")).Return([]domain.IsolatedAccount{adaAccount()}, nil).Twice()
	ex.On("OpenOrders", mock.Anything, domain.ScopeIsolated, domain.Symbol("ADAEUR")).Return([]domain.Order(nil), nil).Twice()
	require.NoError(t, e.Subscribe(ctx, "ADAEUR", false))

	unsubscribed := make(chan error, 1)
	e.OnOrder(func(o domain.Order) {
		if o.Status == domain.OrderStatusFilled {
			unsubscribed <- e.Unsubscribe(o.Symbol)
		}
	})

	runWithin(t, 2*time.Second, func() {
		assert.NoError(t, streams.deliver(adaRoute, executionReportJSON("ADAEUR", 41, "FILLED", "BUY")))
	})
	require.NoError(t, <-unsubscribed)

	assert.True(t, streams.stream(adaRoute).isClosed())
	assert.Empty(t, e.Isolated().Subscribed())
	_, ok := e.Store().Order(domain.OrderKey{Symbol: "ADAEUR", ID: 41})
	assert.False(t, ok, "the event is dropped once its stream was detached")

	// the per-symbol lock was released
	runWithin(t, 2*time.Second, func() {
		assert.NoError(t, e.Subscribe(ctx, "ADAEUR", false))
	})
	assert.Equal(t, 2, streams.openCount(adaRoute))
}

func TestEngine_StopFromOrderCallback(t *testing.T) {
	ex := exchangeMock.NewExchange(t)
	streams := newFakeStreams()
	e := newTestEngine(t, ex, streams, Options{})
	require.NoError(t, e.Start(context.Background()))

	stopped := make(chan error, 1)
	e.OnOrder(func(domain.Order) { stopped <- e.Stop() })

	runWithin(t, 2*time.Second, func() {
		assert.NoError(t, streams.deliver(spotRoute, executionReportJSON("ADAEUR", 42, "NEW", "BUY")))
	})
	require.NoError(t, <-stopped)

	assert.True(t, streams.stream(spotRoute).isClosed())
	assert.True(t, streams.stream(marginRoute).isClosed())
	assert.ErrorIs(t, e.Stop(), domain.ErrEngineStopped)
}
