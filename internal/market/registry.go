// Package market keeps static instrument reference data.
package market

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/marginbook/internal/domain"
)

// InfoSource lists the instruments traded on the exchange.
type InfoSource interface {
	Instruments(ctx context.Context) ([]domain.Instrument, error)
}

// Registry instrument lookup by canonical symbol. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	instruments map[domain.Symbol]domain.Instrument
}

// NewRegistry creates a registry holding instruments.
func NewRegistry(instruments []domain.Instrument) *Registry {
	r := &Registry{instruments: make(map[domain.Symbol]domain.Instrument, len(instruments))}
	for _, inst := range instruments {
		r.instruments[inst.Symbol] = inst
	}
	return r
}

// Load builds a registry from the exchange instrument list.
func Load(ctx context.Context, src InfoSource) (*Registry, error) {
	instruments, err := src.Instruments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load instruments")
	}
	return NewRegistry(instruments), nil
}

// Has reports whether the symbol is listed.
func (r *Registry) Has(symbol domain.Symbol) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[symbol]
	return ok
}

// Instrument returns the instrument for symbol.
func (r *Registry) Instrument(symbol domain.Symbol) (domain.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[symbol]
	if !ok {
		return domain.Instrument{}, &domain.AccountError{Op: "instrument", Symbol: symbol, Err: domain.ErrUnknownSymbol}
	}
	return inst, nil
}

// Lookup normalizes a user supplied symbol (ADA/EUR, ada_eur, ...) and returns its instrument.
func (r *Registry) Lookup(raw string) (domain.Instrument, error) {
	return r.Instrument(domain.NormalizeSymbol(raw))
}

// MarkIsolatedEligible flags instruments as tradable on isolated margin, typically after
// their isolated account was created. Unknown symbols are ignored.
func (r *Registry) MarkIsolatedEligible(symbols ...domain.Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range symbols {
		inst, ok := r.instruments[s]
		if !ok {
			continue
		}
		inst.IsolatedMarginAllowed = true
		r.instruments[s] = inst
	}
}

// Symbols returns listed symbols in lexical order.
func (r *Registry) Symbols() []domain.Symbol {
	r.mu.RLock()
	out := make([]domain.Symbol, 0, len(r.instruments))
	for s := range r.instruments {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of listed instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
