package account

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSeedWorkers = 4

// SeedOptions controls the REST bootstrap.
type SeedOptions struct {
	// Workers bounds the number of concurrent REST calls.
	Workers int
	// IsolatedSymbols are isolated margin pairs whose accounts are created when missing
	// and CreateMissing is set.
	IsolatedSymbols []domain.Symbol
	CreateMissing   bool
}

// Seeder fetches the initial account snapshot over REST.
type Seeder struct {
	exchange Exchange
	opts     SeedOptions
	logger   *zap.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(exchange Exchange, opts SeedOptions, logger *zap.Logger) *Seeder {
	if opts.Workers <= 0 {
		opts.Workers = defaultSeedWorkers
	}
	return &Seeder{exchange: exchange, opts: opts, logger: logger}
}

// Seed runs the independent REST calls in parallel and returns the snapshot only when
// every call succeeded. All failures are reported together.
func (s *Seeder) Seed(ctx context.Context) (*Snapshot, error) {
	var (
		snap   Snapshot
		mu     sync.Mutex
		errsMu sync.Mutex
		errs   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	record := func(name string, err error) error {
		err = errors.Wrapf(err, "seed %s", name)
		// siblings cancelled by the first failure only add noise
		if !errors.Is(err, context.Canceled) || ctx.Err() != nil {
			errsMu.Lock()
			errs = multierr.Append(errs, err)
			errsMu.Unlock()
		}
		return err
	}

	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				return record(name, err)
			}
			return nil
		})
	}

	run("spot balances", func(ctx context.Context) error {
		balances, err := s.exchange.SpotBalances(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Spot = balances
		mu.Unlock()
		return nil
	})

	run("spot open orders", func(ctx context.Context) error {
		orders, err := s.exchange.OpenOrders(ctx, domain.ScopeSpot, "")
		if err != nil {
			return err
		}
		mu.Lock()
		snap.OpenOrders = append(snap.OpenOrders, orders...)
		mu.Unlock()
		return nil
	})

	run("margin account", func(ctx context.Context) error {
		acc, balances, err := s.exchange.MarginAccount(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.MarginAccount = acc
		snap.Margin = balances
		mu.Unlock()
		return nil
	})

	run("margin open orders", func(ctx context.Context) error {
		orders, err := s.exchange.OpenOrders(ctx, domain.ScopeMargin, "")
		if err != nil {
			return err
		}
		mu.Lock()
		snap.OpenOrders = append(snap.OpenOrders, orders...)
		mu.Unlock()
		return nil
	})

	run("isolated margin symbols", func(ctx context.Context) error {
		pairs, err := s.exchange.IsolatedMarginSymbols(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.IsolatedSymbols = pairs
		mu.Unlock()
		return nil
	})

	run("isolated margin accounts", func(ctx context.Context) error {
		if err := s.createMissing(ctx); err != nil {
			return err
		}
		accounts, err := s.exchange.IsolatedMarginAccounts(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Isolated = accounts
		mu.Unlock()

		// own group: g.Go from inside a g task can block on its own slot
		orders, octx := errgroup.WithContext(ctx)
		orders.SetLimit(s.opts.Workers)
		for _, acc := range accounts {
			orders.Go(func() error {
				name := "isolated open orders " + acc.Symbol.String()
				list, err := s.exchange.OpenOrders(octx, domain.ScopeIsolated, acc.Symbol)
				if err != nil {
					return record(name, err)
				}
				mu.Lock()
				snap.OpenOrders = append(snap.OpenOrders, list...)
				mu.Unlock()
				return nil
			})
		}
		if err := orders.Wait(); err != nil {
			return context.Canceled
		}
		return nil
	})

	_ = g.Wait()
	if errs != nil {
		return nil, errs
	}

	s.logger.Info("account snapshot seeded",
		zap.Int("spot_assets", len(snap.Spot)),
		zap.Int("margin_assets", len(snap.Margin)),
		zap.Int("isolated_accounts", len(snap.Isolated)),
		zap.Int("isolated_symbols", len(snap.IsolatedSymbols)),
		zap.Int("open_orders", len(snap.OpenOrders)))

	return &snap, nil
}

// createMissing creates the configured isolated accounts before they are listed.
// Pairs that cannot be created are skipped.
func (s *Seeder) createMissing(ctx context.Context) error {
	if !s.opts.CreateMissing || len(s.opts.IsolatedSymbols) == 0 {
		return nil
	}

	existing, err := s.exchange.IsolatedMarginAccounts(ctx, s.opts.IsolatedSymbols...)
	if err != nil {
		return err
	}
	created := make(map[domain.Symbol]bool, len(existing))
	for _, acc := range existing {
		created[acc.Symbol] = acc.Created
	}

	for _, symbol := range s.opts.IsolatedSymbols {
		if created[symbol] {
			continue
		}
		err := s.exchange.CreateIsolatedMarginAccount(ctx, symbol)
		switch {
		case err == nil:
			s.logger.Info("isolated margin account created", zap.String("symbol", symbol.String()))
		case errors.Is(err, domain.ErrPairNotFound), errors.Is(err, domain.ErrPairDelisted):
			s.logger.Warn("skipping isolated margin account", zap.String("symbol", symbol.String()), zap.Error(err))
		default:
			return errors.Wrapf(err, "create isolated margin account %s", symbol)
		}
	}

	return nil
}
