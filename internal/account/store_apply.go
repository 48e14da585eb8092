package account

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// orderTransition outcome of applying an execution report.
type orderTransition int

const (
	transitionApplied orderTransition = iota
	// transitionStale the order is already terminal and the event was dropped.
	transitionStale
	// transitionDetached the delivering connection was closed before the event applied.
	transitionDetached
)

var errDetached = errors.New("event source detached")

// applyOrder merges one execution report into the open/closed order sets.
// Terminal state is sticky: nothing moves an order out of the closed set.
func (s *Store) applyOrder(ctx context.Context, o domain.Order) (domain.Order, orderTransition, error) {
	key := o.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !sourceAttached(ctx) {
		return o, transitionDetached, nil
	}

	if prev, ok := s.closed[key]; ok {
		return prev, transitionStale, nil
	}

	switch o.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
		s.open = removeOrders(s.open, key)
		s.open = append(s.open, o)
		return o, transitionApplied, nil

	case domain.OrderStatusFilled:
		matches := s.openIndexesLocked(key)
		switch len(matches) {
		case 0:
			s.closed[key] = o
			return o, transitionApplied, nil
		case 1:
			cur := s.open[matches[0]]
			cur.Status = domain.OrderStatusFilled
			cur.Price = o.Price
			cur.Filled = o.Filled
			cur.Commission = o.Commission
			cur.CommissionAsset = o.CommissionAsset
			cur.UpdatedAt = o.UpdatedAt
			s.open = removeOrders(s.open, key)
			s.closed[key] = cur
			return cur, transitionApplied, nil
		default:
			return o, transitionApplied, &domain.AccountError{
				Op:     "fill order",
				Scope:  o.Scope,
				Symbol: o.Symbol,
				Detail: "order " + key.String(),
				Err:    domain.ErrDuplicateOrder,
			}
		}

	case domain.OrderStatusCancelled:
		cancelled := o
		for _, idx := range s.openIndexesLocked(key) {
			cancelled = s.open[idx]
			cancelled.Status = domain.OrderStatusCancelled
			cancelled.Filled = o.Filled
			cancelled.UpdatedAt = o.UpdatedAt
		}
		s.open = removeOrders(s.open, key)
		s.closed[key] = cancelled
		return cancelled, transitionApplied, nil
	}

	return o, transitionStale, nil
}

func (s *Store) openIndexesLocked(key domain.OrderKey) []int {
	var idx []int
	for i, o := range s.open {
		if o.Key() == key {
			idx = append(idx, i)
		}
	}
	return idx
}

func removeOrders(orders []domain.Order, key domain.OrderKey) []domain.Order {
	kept := orders[:0]
	for _, o := range orders {
		if o.Key() != key {
			kept = append(kept, o)
		}
	}
	// clear the tail so removed orders are not retained by the backing array
	for i := len(kept); i < len(orders); i++ {
		orders[i] = domain.Order{}
	}
	return kept
}

// seedOpenOrders inserts REST listed open orders, replacing same-key open orders and
// skipping orders that already reached a terminal state through the stream.
func (s *Store) seedOpenOrders(orders []domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		key := o.Key()
		if _, ok := s.closed[key]; ok {
			continue
		}
		s.open = removeOrders(s.open, key)
		s.open = append(s.open, o)
	}
}

// applyAccountPosition replaces free and locked of every listed asset.
func (s *Store) applyAccountPosition(ctx context.Context, route Route, positions []domain.Balance) ([]domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sourceAttached(ctx) {
		return nil, errDetached
	}

	balances, err := s.balancesLocked("account position", route.Scope, route.Symbol)
	if err != nil {
		return nil, err
	}

	updated := make([]domain.Balance, 0, len(positions))
	for _, p := range positions {
		b := balances[p.Asset]
		b.Asset = p.Asset
		b.Free = p.Free
		b.Locked = p.Locked
		balances[p.Asset] = b
		updated = append(updated, b)
	}

	return updated, nil
}

// applyBalanceDelta adds a signed delta to the free balance; an unseen asset starts at the delta.
func (s *Store) applyBalanceDelta(ctx context.Context, route Route, asset string, delta decimal.Decimal) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sourceAttached(ctx) {
		return domain.Balance{}, errDetached
	}

	balances, err := s.balancesLocked("balance delta", route.Scope, route.Symbol)
	if err != nil {
		return domain.Balance{}, err
	}

	b, ok := balances[asset]
	if !ok {
		b = domain.Balance{Asset: asset}
	}
	b.Free = b.Free.Add(delta)
	balances[asset] = b

	return b, nil
}

// setMarginAccount refreshes cross margin health. Balances stay owned by the stream.
func (s *Store) setMarginAccount(acc domain.MarginAccount) {
	acc.MarginRatio = s.crossMarginRatio

	s.mu.Lock()
	s.marginAccount = acc
	s.mu.Unlock()
}

// setIsolatedAccount stores a freshly queried isolated account, keeping the subscription flag.
func (s *Store) setIsolatedAccount(acc domain.IsolatedAccount) {
	book := newIsolatedBook(acc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.isolated[acc.Symbol]; ok {
		book.pair.Subscribed = prev.pair.Subscribed
		book.pair.AccountCreated = book.pair.AccountCreated || prev.pair.AccountCreated
	}
	if p, ok := s.eligible[acc.Symbol]; ok {
		if book.pair.BaseAsset == "" {
			book.pair.BaseAsset = p.BaseAsset
		}
		if book.pair.QuoteAsset == "" {
			book.pair.QuoteAsset = p.QuoteAsset
		}
	}
	s.isolated[acc.Symbol] = book
}

// setIsolatedMarginLevel refreshes the margin level of one isolated account.
func (s *Store) setIsolatedMarginLevel(symbol domain.Symbol, level decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.isolated[symbol]
	if !ok {
		return false
	}
	book.pair.MarginLevel = level
	return true
}

// setSubscribed flips the subscription flag. Balances are never dropped here.
func (s *Store) setSubscribed(symbol domain.Symbol, subscribed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.isolated[symbol]
	if !ok {
		return false
	}
	book.pair.Subscribed = subscribed
	return true
}

// addEligible registers an isolated margin pair discovered after seeding.
// It reports false when the pair was already known.
func (s *Store) addEligible(pair domain.IsolatedMarginPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eligible[pair.Symbol]; ok {
		return false
	}
	s.eligible[pair.Symbol] = pair
	return true
}
