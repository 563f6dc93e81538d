package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"solana-swap/pkg/quote"
)

// Route is a quote.Route backed by a Jupiter quote.
type Route struct {
	client *Jupiter
	quote  *QuoteResponse
}

var _ quote.Route = (*Route)(nil)

// Labels names the venues the route trades through.
func (r *Route) Labels() []string { return r.quote.Labels() }

func (r *Route) OutAmount() uint64 { return r.quote.outAmount }

func (r *Route) PriceImpact() float64 { return r.quote.priceImpact }

// Instructions fetches and decodes the swap instructions for trader.
func (r *Route) Instructions(ctx context.Context, trader solana.PublicKey) (*quote.SwapInstructions, error) {
	resp, err := r.client.SwapInstructions(ctx, r.quote, trader)
	if err != nil {
		return nil, err
	}
	return resp.Decode()
}

// Decode converts the response into solana-go instructions.
func (s *SwapInstructionsResponse) Decode() (*quote.SwapInstructions, error) {
	out := &quote.SwapInstructions{}
	var err error

	if out.ComputeBudget, err = decodeInstructions(s.ComputeBudgetInstructions); err != nil {
		return nil, fmt.Errorf("compute budget: %w", err)
	}

	other, err := decodeInstructions(s.OtherInstructions)
	if err != nil {
		return nil, fmt.Errorf("other: %w", err)
	}
	setup, err := decodeInstructions(s.SetupInstructions)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	out.Setup = append(other, setup...)

	if s.SwapInstruction == nil {
		return nil, fmt.Errorf("empty swap instruction")
	}
	if out.Swap, err = decodeInstruction(*s.SwapInstruction); err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	if s.CleanupInstruction != nil {
		cleanup, err := decodeInstruction(*s.CleanupInstruction)
		if err != nil {
			return nil, fmt.Errorf("cleanup: %w", err)
		}
		out.Cleanup = []solana.Instruction{cleanup}
	}

	for _, addr := range s.AddressLookupTableAddresses {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid lookup table '%s': %w", addr, err)
		}
		out.LookupTables = append(out.LookupTables, pk)
	}

	return out, nil
}
