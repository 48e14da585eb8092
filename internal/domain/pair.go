// Package domain defines core data structures shared by the account engine and risk calculators.
package domain

import (
	"fmt"
	"strings"
)

// Symbol canonical exchange symbol, e.g. ADAEUR.
type Symbol string

// String returns the string representation.
func (s Symbol) String() string {
	return string(s)
}

// IsZero reports whether the symbol is empty.
func (s Symbol) IsZero() bool {
	return s == ""
}

// NormalizeSymbol converts user supplied symbol spellings (ADA/EUR, ada_eur, ADA-EUR, adaeur)
// into the canonical form used by every internal API.
func NormalizeSymbol(raw string) Symbol {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '/', '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}

	return Symbol(strings.ToUpper(b.String()))
}

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// NewPair parses BASE_QUOTE (or BASE/QUOTE) into a pair.
func NewPair(raw string) (Pair, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '_' || r == '/' || r == '-'
	})
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected BASE_QUOTE", raw)
	}

	return Pair{From: strings.ToUpper(parts[0]), To: strings.ToUpper(parts[1])}, nil
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the canonical symbol.
func (p Pair) Symbol() Symbol {
	return Symbol(p.From + p.To)
}
