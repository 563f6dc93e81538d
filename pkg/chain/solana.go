package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"solana-swap/pkg/logger"
)

const (
	DefaultConfirmTimeout   = 60 * time.Second
	DefaultPollInterval     = 2 * time.Second
	DefaultLookupTableCache = 128
)

var (
	// ErrConfirmationTimeout means the signature did not reach the target
	// commitment before the confirmation deadline.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	// ErrTransactionFailed means the transaction landed but its execution failed.
	ErrTransactionFailed = errors.New("transaction failed")
)

// Config holds the Solana connection settings.
type Config struct {
	RPCURL           string
	Commitment       string
	SkipPreflight    bool
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	LookupTableCache int
}

// Connection wraps the Solana JSON-RPC client.
type Connection struct {
	config     Config
	client     *rpc.Client
	commitment rpc.CommitmentType
	tables     *lru.Cache
	logger     *zap.Logger
}

// NewConnection creates a new Solana connection
func NewConnection(cfg Config, l *zap.Logger) (*Connection, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL not configured for Solana")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LookupTableCache <= 0 {
		cfg.LookupTableCache = DefaultLookupTableCache
	}

	tables, err := lru.New(cfg.LookupTableCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup table cache: %w", err)
	}

	return &Connection{
		config:     cfg,
		client:     rpc.New(cfg.RPCURL),
		commitment: ParseCommitment(cfg.Commitment),
		tables:     tables,
		logger:     logger.OrNop(l),
	}, nil
}

// ParseCommitment maps a config string to a commitment level, defaulting to confirmed.
func ParseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// Commitment returns the configured commitment level.
func (c *Connection) Commitment() rpc.CommitmentType {
	return c.commitment
}

// LatestBlockhash returns a recent blockhash for a new transaction.
func (c *Connection) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	recent, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return recent.Value.Blockhash, nil
}

// SendRawTransaction broadcasts a signed, serialized transaction.
func (c *Connection) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       c.config.SkipPreflight,
		PreflightCommitment: c.commitment,
	}

	sig, err := c.client.SendRawTransactionWithOpts(ctx, raw, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("transaction sent", zap.String("signature", sig.String()))
	return sig, nil
}

// SignatureStatus returns the cluster's view of sig, or nil when it is unknown.
func (c *Connection) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	return c.signatureStatus(ctx, sig, true)
}

func (c *Connection) signatureStatus(ctx context.Context, sig solana.Signature, searchHistory bool) (*rpc.SignatureStatusesResult, error) {
	out, err := c.client.GetSignatureStatuses(ctx, searchHistory, sig)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// ConfirmTransaction polls until sig reaches the configured commitment. It
// gives up with ErrConfirmationTimeout after the confirm timeout and returns
// ErrTransactionFailed if the transaction landed with an error.
func (c *Connection) ConfirmTransaction(ctx context.Context, sig solana.Signature) (rpc.ConfirmationStatusType, error) {
	deadline, cancel := context.WithTimeout(ctx, c.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(deadline, sig, false)
		if err != nil && deadline.Err() == nil {
			// transient RPC failures are retried until the deadline
			c.logger.Debug("signature status poll failed", zap.String("signature", sig.String()), zap.Error(err))
		}
		if status != nil {
			if status.Err != nil {
				return status.ConfirmationStatus, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if Reached(status.ConfirmationStatus, c.commitment) {
				c.logger.Info("transaction confirmed",
					zap.String("signature", sig.String()),
					zap.String("status", string(status.ConfirmationStatus)),
					zap.Uint64("slot", status.Slot))
				return status.ConfirmationStatus, nil
			}
		}

		select {
		case <-deadline.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w after %s: %s", ErrConfirmationTimeout, c.config.ConfirmTimeout, sig)
		case <-ticker.C:
		}
	}
}

// Reached reports whether status satisfies the commitment level.
func Reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	have := rank(string(status))
	return have > 0 && have >= rank(string(commitment))
}

// LookupTables resolves address lookup tables. Results are cached since
// aggregator tables are reused across swaps.
func (c *Connection) LookupTables(ctx context.Context, addrs []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	out := make(map[solana.PublicKey]solana.PublicKeySlice, len(addrs))

	var missing []solana.PublicKey
	for _, addr := range addrs {
		if cached, ok := c.tables.Get(addr); ok {
			out[addr] = cached.(solana.PublicKeySlice)
			continue
		}
		if _, dup := out[addr]; !dup {
			missing = append(missing, addr)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	resp, err := c.client.GetMultipleAccountsWithOpts(ctx, missing, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup tables: %w", err)
	}
	if len(resp.Value) != len(missing) {
		return nil, fmt.Errorf("expected %d lookup tables, got %d", len(missing), len(resp.Value))
	}

	for i, acc := range resp.Value {
		addr := missing[i]
		if acc == nil || acc.Data == nil {
			return nil, fmt.Errorf("lookup table %s not found", addr)
		}
		state, err := addresslookuptable.DecodeAddressLookupTableState(acc.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("failed to decode lookup table %s: %w", addr, err)
		}
		c.tables.Add(addr, state.Addresses)
		out[addr] = state.Addresses
	}

	c.logger.Debug("lookup tables resolved", zap.Int("requested", len(addrs)), zap.Int("fetched", len(missing)))
	return out, nil
}

// AccountExists checks if an account exists on-chain
func (c *Connection) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	accountInfo, err := c.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account info: %w", err)
	}

	return accountInfo.Value != nil, nil
}

// Balance returns the SOL balance in lamports
func (c *Connection) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	balance, err := c.client.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// TokenBalance returns owner's balance of mint in base units. A missing
// associated token account counts as zero.
func (c *Connection) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	exists, err := c.AccountExists(ctx, ata)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	accountInfo, err := c.client.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}

	amount, err := strconv.ParseUint(accountInfo.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance: %w", err)
	}

	return amount, nil
}
