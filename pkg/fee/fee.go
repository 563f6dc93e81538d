package fee

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// DefaultRecipient receives the protocol fee on every swap.
const DefaultRecipient = "EpfmoiBoNFEofbACjZo1vpyqXUy5Fq9ZtPrGVwok5fb3"

// MaxRate is the advertised fee ceiling (0.1%).
var MaxRate = decimal.New(1, -3)

var (
	// ErrFeeRateExceeded means a configured rate is above MaxRate.
	ErrFeeRateExceeded = errors.New("fee rate exceeds ceiling")
	// ErrInvalidRate means a configured rate is negative.
	ErrInvalidRate = errors.New("invalid fee rate")
	// ErrNoRecipient means the fee recipient is the zero key.
	ErrNoRecipient = errors.New("fee recipient not configured")
)

// Config holds the immutable fee parameters injected into the calculator and
// the transaction builder.
type Config struct {
	Recipient solana.PublicKey
	Rate      decimal.Decimal
}

// DefaultConfig returns the production fee configuration.
func DefaultConfig() Config {
	return Config{
		Recipient: solana.MustPublicKeyFromBase58(DefaultRecipient),
		Rate:      MaxRate,
	}
}

// Calculator computes the protocol fee for a trade.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a calculator bound to it
func NewCalculator(cfg Config) (*Calculator, error) {
	if cfg.Rate.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRate, cfg.Rate.String())
	}
	if cfg.Rate.GreaterThan(MaxRate) {
		return nil, fmt.Errorf("%w: %s > %s", ErrFeeRateExceeded, cfg.Rate.String(), MaxRate.String())
	}
	if cfg.Recipient.IsZero() {
		return nil, ErrNoRecipient
	}
	return &Calculator{cfg: cfg}, nil
}

// MustCalculator is NewCalculator for configuration known to be valid.
// A rate above the ceiling is a programming error and panics.
func MustCalculator(cfg Config) *Calculator {
	calc, err := NewCalculator(cfg)
	if err != nil {
		panic(err)
	}
	return calc
}

// Compute returns the fee in the input token's base units, truncated toward zero.
func (c *Calculator) Compute(inputBase uint64) uint64 {
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(inputBase), 0)
	// rate <= 0.001 so the product always fits back into u64
	return amount.Mul(c.cfg.Rate).Truncate(0).BigInt().Uint64()
}

// Recipient returns the fee recipient.
func (c *Calculator) Recipient() solana.PublicKey {
	return c.cfg.Recipient
}

// Rate returns the configured fee rate as a fraction.
func (c *Calculator) Rate() decimal.Decimal {
	return c.cfg.Rate
}

// DisplayRate renders the rate as a percentage, e.g. "0.1%".
func (c *Calculator) DisplayRate() string {
	return c.cfg.Rate.Shift(2).String() + "%"
}

// ShortRecipient renders the recipient as "Epfm...5fb3".
func (c *Calculator) ShortRecipient() string {
	s := c.cfg.Recipient.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}
