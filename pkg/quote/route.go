package quote

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Route is a candidate execution path proposed by the aggregator.
type Route interface {
	// OutAmount is the expected output in base units of the output token.
	OutAmount() uint64
	// PriceImpact is the aggregator-reported impact as a fraction (0.01 = 1%).
	PriceImpact() float64
	// Instructions prepares the swap instructions for trader.
	Instructions(ctx context.Context, trader solana.PublicKey) (*SwapInstructions, error)
}

// SwapInstructions is what an aggregator returns for executing a route.
// Source and destination are the trader's own token accounts.
type SwapInstructions struct {
	ComputeBudget []solana.Instruction
	Setup         []solana.Instruction
	Swap          solana.Instruction
	Cleanup       []solana.Instruction
	// LookupTables are the address lookup tables the instructions reference.
	LookupTables []solana.PublicKey
}

// Body returns the setup, swap and cleanup instructions in execution order.
func (s *SwapInstructions) Body() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(s.Setup)+len(s.Cleanup)+1)
	out = append(out, s.Setup...)
	if s.Swap != nil {
		out = append(out, s.Swap)
	}
	return append(out, s.Cleanup...)
}

// RouteParams is a route discovery request in base units.
type RouteParams struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	Amount      uint64
	SlippageBps uint16
}

// Aggregator discovers routes between two mints. Routes are returned in the
// aggregator's ranking, best first.
type Aggregator interface {
	Routes(ctx context.Context, params RouteParams) ([]Route, error)
}
