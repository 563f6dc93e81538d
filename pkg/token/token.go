package token

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Kind distinguishes the chain's native asset from SPL tokens.
type Kind int

const (
	// Native is SOL held directly in the wallet account (lamports).
	Native Kind = iota
	// Fungible is an SPL token held in an associated token account.
	Fungible
)

func (k Kind) String() string {
	switch k {
	case Native:
		return "native"
	case Fungible:
		return "fungible"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Token describes a tradable asset.
//
// Native tokens carry the wrapped SOL mint so the aggregator can route them.
type Token struct {
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	Mint     solana.PublicKey `json:"mint"`
	Decimals uint8            `json:"decimals"`
	LogoURI  string           `json:"logoURI"`
	Kind     Kind             `json:"kind"`
}

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool {
	return t.Kind == Native
}

// Equal compares tokens by kind and mint.
func (t Token) Equal(other Token) bool {
	return t.Kind == other.Kind && t.Mint.Equals(other.Mint)
}

func (t Token) String() string {
	return t.Symbol
}

// Registry is a static, ordered list of tokens.
type Registry struct {
	tokens []Token
}

// NewRegistry creates a registry. Symbols must be unique.
func NewRegistry(tokens ...Token) (*Registry, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("registry needs at least two tokens, got %d", len(tokens))
	}

	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		key := strings.ToUpper(t.Symbol)
		if seen[key] {
			return nil, fmt.Errorf("duplicate token symbol '%s'", t.Symbol)
		}
		seen[key] = true
	}

	return &Registry{tokens: append([]Token(nil), tokens...)}, nil
}

// All returns the tokens in registry order.
func (r *Registry) All() []Token {
	return append([]Token(nil), r.tokens...)
}

// At returns the token at index i.
func (r *Registry) At(i int) Token {
	return r.tokens[i]
}

// Len returns the number of tokens.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// Find looks a token up by symbol, case-insensitively
func (r *Registry) Find(symbol string) (Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range r.tokens {
		if strings.ToUpper(t.Symbol) == symbol {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("token '%s' not found", symbol)
}

// FindByMint looks a token up by mint address.
func (r *Registry) FindByMint(mint solana.PublicKey) (Token, error) {
	for _, t := range r.tokens {
		if t.Mint.Equals(mint) {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("mint '%s' not in registry", mint)
}

// Other returns the first registry entry that differs from t.
func (r *Registry) Other(t Token) Token {
	for _, candidate := range r.tokens {
		if !candidate.Equal(t) {
			return candidate
		}
	}
	// NewRegistry guarantees two distinct symbols, but not distinct mints
	return r.tokens[0]
}
