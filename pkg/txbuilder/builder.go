package txbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	splToken "github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/fee"
	"solana-swap/pkg/logger"
	"solana-swap/pkg/quote"
	"solana-swap/pkg/token"
)

var (
	// ErrAccountResolution means a token account could not be derived or checked.
	ErrAccountResolution = errors.New("account resolution failed")
	// ErrIncompleteTrade means the route or the input amount is missing.
	ErrIncompleteTrade = errors.New("incomplete trade")
)

// Chain is the subset of the chain connection the builder needs.
type Chain interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	LookupTables(ctx context.Context, addrs []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
}

// Builder assembles the fee transfer and the aggregator's swap instructions
// into one unsigned transaction.
type Builder struct {
	fee    *fee.Calculator
	chain  Chain
	logger *zap.Logger
}

// New creates a builder.
func New(calc *fee.Calculator, chain Chain, l *zap.Logger) *Builder {
	return &Builder{
		fee:    calc,
		chain:  chain,
		logger: logger.OrNop(l),
	}
}

// BuildSwapTransaction builds the transaction executing route for trader.
// Instruction order: compute budget, fee transfer, aggregator setup, swap,
// cleanup. The transaction is returned unsigned.
func (b *Builder) BuildSwapTransaction(
	ctx context.Context,
	route quote.Route,
	trader solana.PublicKey,
	in, out token.Token,
	humanInput string,
) (*solana.Transaction, error) {
	if route == nil {
		return nil, fmt.Errorf("%w: no route", ErrIncompleteTrade)
	}
	if amount.IsZero(humanInput) {
		return nil, fmt.Errorf("%w: no input amount", ErrIncompleteTrade)
	}
	if trader.IsZero() {
		return nil, fmt.Errorf("%w: no trader", ErrIncompleteTrade)
	}

	inputBase, err := amount.ParseBaseUnits(humanInput, in.Decimals)
	if err != nil {
		return nil, err
	}

	swapIxs, err := route.Instructions(ctx, trader)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare swap instructions: %w", err)
	}
	if swapIxs.Swap == nil {
		return nil, fmt.Errorf("%w: route has no swap instruction", ErrIncompleteTrade)
	}

	feeAmount := b.fee.Compute(inputBase)
	feeIxs, err := b.feeInstructions(ctx, trader, in, feeAmount)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, len(swapIxs.ComputeBudget)+len(feeIxs)+len(swapIxs.Setup)+len(swapIxs.Cleanup)+1)
	instructions = append(instructions, swapIxs.ComputeBudget...)
	instructions = append(instructions, feeIxs...)
	instructions = append(instructions, swapIxs.Body()...)

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	var tables map[solana.PublicKey]solana.PublicKeySlice
	if len(swapIxs.LookupTables) > 0 {
		tables, err = b.chain.LookupTables(ctx, swapIxs.LookupTables)
		if err != nil {
			return nil, err
		}
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(trader),
		solana.TransactionAddressTables(tables),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	b.logger.Debug("swap transaction built",
		zap.String("input", in.Symbol),
		zap.String("output", out.Symbol),
		zap.Uint64("in_amount", inputBase),
		zap.Uint64("fee", feeAmount),
		zap.Int("instructions", len(instructions)),
		zap.Int("lookup_tables", len(tables)))

	return tx, nil
}

// feeInstructions returns the single fee transfer, preceded by the creation
// of the recipient's token account when it does not exist yet.
func (b *Builder) feeInstructions(ctx context.Context, trader solana.PublicKey, in token.Token, feeAmount uint64) ([]solana.Instruction, error) {
	recipient := b.fee.Recipient()

	if in.IsNative() {
		return []solana.Instruction{
			system.NewTransferInstruction(feeAmount, trader, recipient).Build(),
		}, nil
	}

	source, err := associatedTokenAddress(trader, in.Mint)
	if err != nil {
		return nil, err
	}
	dest, err := associatedTokenAddress(recipient, in.Mint)
	if err != nil {
		return nil, err
	}

	exists, err := b.chain.AccountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: check fee account %s: %v", ErrAccountResolution, dest, err)
	}

	instructions := make([]solana.Instruction, 0, 2)
	if !exists {
		b.logger.Info("creating fee recipient token account", zap.String("mint", in.Mint.String()), zap.String("account", dest.String()))
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			trader,    // payer
			recipient, // wallet
			in.Mint,   // mint
		).Build())
	}

	instructions = append(instructions, splToken.NewTransferInstruction(
		feeAmount,
		source,
		dest,
		trader,
		[]solana.PublicKey{}, // no multisig
	).Build())

	return instructions, nil
}

// associatedTokenAddress derives the associated token account address
func associatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: derive token account for %s: %v", ErrAccountResolution, wallet, err)
	}
	return addr, nil
}
