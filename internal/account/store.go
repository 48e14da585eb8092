package account

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// Snapshot REST view of the account used to seed the store.
type Snapshot struct {
	Spot            []domain.Balance
	Margin          []domain.Balance
	MarginAccount   domain.MarginAccount
	Isolated        []domain.IsolatedAccount
	IsolatedSymbols []domain.IsolatedMarginPair
	OpenOrders      []domain.Order
}

type isolatedBook struct {
	pair     domain.IsolatedMarginPair
	balances map[string]domain.Balance
}

// Store authoritative in-memory account state.
//
// A single RWMutex serializes every mutation, so a snapshot replace and a delta apply
// on the same asset can never interleave. Readers get copies.
type Store struct {
	mu sync.RWMutex

	spot          map[string]domain.Balance
	margin        map[string]domain.Balance
	marginAccount domain.MarginAccount
	isolated      map[domain.Symbol]*isolatedBook
	eligible      map[domain.Symbol]domain.IsolatedMarginPair

	// open keeps insertion order and may hold duplicates coming from REST listings,
	// which is why FILLED reconciliation checks the match count.
	open   []domain.Order
	closed map[domain.OrderKey]domain.Order

	crossMarginRatio int
}

// NewStore creates an empty store. crossMarginRatio is the exchange wide cross margin ratio.
func NewStore(crossMarginRatio int) *Store {
	if crossMarginRatio <= 1 {
		crossMarginRatio = domain.DefaultCrossMarginRatio
	}
	return &Store{
		spot:             make(map[string]domain.Balance),
		margin:           make(map[string]domain.Balance),
		isolated:         make(map[domain.Symbol]*isolatedBook),
		eligible:         make(map[domain.Symbol]domain.IsolatedMarginPair),
		closed:           make(map[domain.OrderKey]domain.Order),
		crossMarginRatio: crossMarginRatio,
		marginAccount:    domain.MarginAccount{MarginRatio: crossMarginRatio},
	}
}

// Replace swaps the whole state for the snapshot in one critical section.
func (s *Store) Replace(snap *Snapshot) {
	spot := make(map[string]domain.Balance, len(snap.Spot))
	for _, b := range snap.Spot {
		spot[b.Asset] = b
	}
	margin := make(map[string]domain.Balance, len(snap.Margin))
	for _, b := range snap.Margin {
		margin[b.Asset] = b
	}
	eligible := make(map[domain.Symbol]domain.IsolatedMarginPair, len(snap.IsolatedSymbols))
	for _, p := range snap.IsolatedSymbols {
		eligible[p.Symbol] = p
	}
	isolated := make(map[domain.Symbol]*isolatedBook, len(snap.Isolated))
	for _, acc := range snap.Isolated {
		isolated[acc.Symbol] = newIsolatedBook(acc)
	}
	open := make([]domain.Order, 0, len(snap.OpenOrders))
	open = append(open, snap.OpenOrders...)

	marginAccount := snap.MarginAccount
	marginAccount.MarginRatio = s.crossMarginRatio

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spot = spot
	s.margin = margin
	s.marginAccount = marginAccount
	s.eligible = eligible
	s.isolated = isolated
	s.open = open
	s.closed = make(map[domain.OrderKey]domain.Order)
}

func newIsolatedBook(acc domain.IsolatedAccount) *isolatedBook {
	book := &isolatedBook{
		pair: domain.IsolatedMarginPair{
			Symbol:         acc.Symbol,
			BaseAsset:      acc.Base.Asset,
			QuoteAsset:     acc.Quote.Asset,
			AccountCreated: acc.Created,
			MarginRatio:    acc.MarginRatio,
			MarginLevel:    acc.MarginLevel,
		},
		balances: make(map[string]domain.Balance, 2),
	}
	if acc.Base.Asset != "" {
		book.balances[acc.Base.Asset] = acc.Base
	}
	if acc.Quote.Asset != "" {
		book.balances[acc.Quote.Asset] = acc.Quote
	}

	return book
}

// Balance returns one component of a balance.
func (s *Store) Balance(key domain.BalanceKey, kind domain.BalanceKind) (decimal.Decimal, error) {
	if !key.Scope.IsValid() {
		return decimal.Zero, &domain.AccountError{Op: "balance", Scope: key.Scope, Err: domain.ErrUnknownScope}
	}
	if !key.Scope.Supports(kind) {
		return decimal.Zero, &domain.AccountError{Op: "balance", Scope: key.Scope, Kind: kind, Err: domain.ErrUnsupportedKind}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	balances, err := s.balancesLocked("balance", key.Scope, key.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	b, ok := balances[key.Asset]
	if !ok {
		return decimal.Zero, &domain.AccountError{
			Op: "balance", Scope: key.Scope, Symbol: key.Symbol, Asset: key.Asset, Err: domain.ErrUnknownAsset,
		}
	}

	return b.Get(kind), nil
}

// Balances returns a copy of every balance of a scope (of one symbol for isolated margin).
func (s *Store) Balances(scope domain.AccountScope, symbol domain.Symbol) ([]domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances, err := s.balancesLocked("balances", scope, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Balance, 0, len(balances))
	for _, b := range balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })

	return out, nil
}

// balancesLocked resolves the balance map of a scope. Callers hold s.mu.
func (s *Store) balancesLocked(op string, scope domain.AccountScope, symbol domain.Symbol) (map[string]domain.Balance, error) {
	switch scope {
	case domain.ScopeSpot:
		return s.spot, nil
	case domain.ScopeMargin:
		return s.margin, nil
	case domain.ScopeIsolated:
		if symbol.IsZero() {
			return nil, &domain.AccountError{Op: op, Scope: scope, Err: domain.ErrSymbolRequired}
		}
		book, ok := s.isolated[symbol]
		if !ok {
			return nil, &domain.AccountError{Op: op, Scope: scope, Symbol: symbol, Err: domain.ErrUnknownSymbol}
		}
		return book.balances, nil
	default:
		return nil, &domain.AccountError{Op: op, Scope: scope, Err: domain.ErrUnknownScope}
	}
}

// AssetsWithFreeBalance lists assets with a positive free balance, sorted.
func (s *Store) AssetsWithFreeBalance(scope domain.AccountScope, symbol domain.Symbol) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances, err := s.balancesLocked("assets with free balance", scope, symbol)
	if err != nil {
		return nil, err
	}
	assets := make([]string, 0, len(balances))
	for asset, b := range balances {
		if b.Free.IsPositive() {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	return assets, nil
}

// ValueFilter narrows TotalFreeValue. Empty slices select everything.
type ValueFilter struct {
	Scopes  []domain.AccountScope
	Assets  []string
	Symbols []domain.Symbol
}

type valuePart struct {
	asset  string
	amount decimal.Decimal
}

// TotalFreeValue sums free balances expressed in denomination.
//
// Cross margin contributes its BTC net asset total instead of per-asset free balances when
// no asset filter is given: the exchange reports that account total only in BTC.
func (s *Store) TotalFreeValue(ctx context.Context, denomination string, filter ValueFilter, chain ConversionChain) (decimal.Decimal, error) {
	scopes := filter.Scopes
	if len(scopes) == 0 {
		scopes = []domain.AccountScope{domain.ScopeSpot, domain.ScopeMargin, domain.ScopeIsolated}
	}
	for _, scope := range scopes {
		if !scope.IsValid() {
			return decimal.Zero, &domain.AccountError{Op: "total free value", Scope: scope, Err: domain.ErrUnknownScope}
		}
	}

	parts, err := s.collectValueParts(scopes, filter)
	if err != nil {
		return decimal.Zero, err
	}

	// conversions may hit the network, so they run without holding the store lock
	total := decimal.Zero
	for _, p := range parts {
		if p.amount.IsZero() {
			continue
		}
		if p.asset == denomination {
			total = total.Add(p.amount)
			continue
		}
		if chain == nil {
			return decimal.Zero, errors.Errorf("no conversion chain to convert %s to %s", p.asset, denomination)
		}
		converted, err := chain.Convert(ctx, p.asset, denomination, p.amount, domain.SideNone)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "convert %s %s to %s", p.amount.String(), p.asset, denomination)
		}
		total = total.Add(converted)
	}

	return total, nil
}

func (s *Store) collectValueParts(scopes []domain.AccountScope, filter ValueFilter) ([]valuePart, error) {
	assetAllowed := func(asset string) bool {
		if len(filter.Assets) == 0 {
			return true
		}
		for _, a := range filter.Assets {
			if a == asset {
				return true
			}
		}
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var parts []valuePart
	for _, scope := range scopes {
		switch scope {
		case domain.ScopeSpot:
			parts = appendFree(parts, s.spot, assetAllowed)
		case domain.ScopeMargin:
			if len(filter.Assets) == 0 {
				parts = append(parts, valuePart{asset: "BTC", amount: s.marginAccount.TotalNetAssetOfBTC})
				continue
			}
			parts = appendFree(parts, s.margin, assetAllowed)
		case domain.ScopeIsolated:
			symbols := filter.Symbols
			if len(symbols) == 0 {
				symbols = make([]domain.Symbol, 0, len(s.isolated))
				for sym := range s.isolated {
					symbols = append(symbols, sym)
				}
			}
			for _, sym := range symbols {
				book, ok := s.isolated[sym]
				if !ok {
					return nil, &domain.AccountError{Op: "total free value", Scope: scope, Symbol: sym, Err: domain.ErrUnknownSymbol}
				}
				parts = appendFree(parts, book.balances, assetAllowed)
			}
		}
	}

	return parts, nil
}

func appendFree(parts []valuePart, balances map[string]domain.Balance, allowed func(string) bool) []valuePart {
	for asset, b := range balances {
		if allowed(asset) {
			parts = append(parts, valuePart{asset: asset, amount: b.Free})
		}
	}
	return parts
}

// MarginAccount returns the cross margin account.
func (s *Store) MarginAccount() domain.MarginAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marginAccount
}

// IsolatedPair returns the isolated margin registry entry of a symbol.
func (s *Store) IsolatedPair(symbol domain.Symbol) (domain.IsolatedMarginPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.isolated[symbol]
	if !ok {
		return domain.IsolatedMarginPair{}, false
	}
	return book.pair, true
}

// IsolatedPairs returns every isolated margin registry entry, sorted by symbol.
func (s *Store) IsolatedPairs() []domain.IsolatedMarginPair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]domain.IsolatedMarginPair, 0, len(s.isolated))
	for _, book := range s.isolated {
		pairs = append(pairs, book.pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })
	return pairs
}

// IsIsolatedEligible reports whether symbol is a legal isolated margin pair.
func (s *Store) IsIsolatedEligible(symbol domain.Symbol) bool {
	_, ok := s.eligiblePair(symbol)
	return ok
}

func (s *Store) eligiblePair(symbol domain.Symbol) (domain.IsolatedMarginPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.eligible[symbol]
	return p, ok
}

// OrderSelector filters orders. Zero values select everything.
type OrderSelector struct {
	ID       int64
	Symbol   domain.Symbol
	Scope    domain.AccountScope
	Status   domain.OrderStatus
	OpenOnly bool
}

func (sel OrderSelector) match(o domain.Order) bool {
	if sel.ID != 0 && o.ID != sel.ID {
		return false
	}
	if !sel.Symbol.IsZero() && o.Symbol != sel.Symbol {
		return false
	}
	if sel.Scope != "" && o.Scope != sel.Scope {
		return false
	}
	if sel.Status != "" && o.Status != sel.Status {
		return false
	}
	return true
}

// Order returns the order with the given identity, open orders first.
func (s *Store) Order(key domain.OrderKey) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.open {
		if o.Key() == key {
			return o, true
		}
	}
	o, ok := s.closed[key]
	return o, ok
}

// Orders returns orders matching the selector: open orders in arrival order, then terminal ones by key.
func (s *Store) Orders(sel OrderSelector) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Order
	for _, o := range s.open {
		if sel.match(o) {
			out = append(out, o)
		}
	}
	if sel.OpenOnly {
		return out
	}

	terminal := make([]domain.Order, 0, len(s.closed))
	for _, o := range s.closed {
		if sel.match(o) {
			terminal = append(terminal, o)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].Symbol != terminal[j].Symbol {
			return terminal[i].Symbol < terminal[j].Symbol
		}
		return terminal[i].ID < terminal[j].ID
	})

	return append(out, terminal...)
}
