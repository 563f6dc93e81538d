package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest token precision the codec accepts.
const MaxDecimals = 18

// ErrInvalidAmount is returned for malformed or negative decimal input.
var ErrInvalidAmount = errors.New("invalid amount")

// Plain non-negative decimals only: "1", "1.5", ".5", "1.". No signs, no exponents.
var decimalPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Parse validates a human-readable amount and returns it as a decimal.
func Parse(human string) (decimal.Decimal, error) {
	human = strings.TrimSpace(human)
	if !decimalPattern.MatchString(human) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidAmount, human)
	}

	value, err := decimal.NewFromString(human)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return value, nil
}

// IsZero reports whether a human amount is empty or parses to zero.
// Malformed input is not zero.
func IsZero(human string) bool {
	if strings.TrimSpace(human) == "" {
		return true
	}
	value, err := Parse(human)
	return err == nil && value.IsZero()
}

// ToBaseUnits converts a human amount into an integer string of base units.
func ToBaseUnits(human string, decimals uint8) (string, error) {
	base, err := toBase(human, decimals)
	if err != nil {
		return "", err
	}
	return base.String(), nil
}

// ParseBaseUnits converts a human amount into base units that fit an on-chain u64.
func ParseBaseUnits(human string, decimals uint8) (uint64, error) {
	base, err := toBase(human, decimals)
	if err != nil {
		return 0, err
	}

	n := base.BigInt()
	if n.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: %s base units overflows u64", ErrInvalidAmount, n.String())
	}
	return n.Uint64(), nil
}

// FromBaseUnits converts an integer string of base units into a human amount.
func FromBaseUnits(base string, decimals uint8) (string, error) {
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}

	n, ok := new(big.Int).SetString(strings.TrimSpace(base), 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, base)
	}
	return decimal.NewFromBigInt(n, -int32(decimals)).String(), nil
}

// FormatBaseUnits renders an on-chain u64 amount in human units.
func FormatBaseUnits(base uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(base), -int32(decimals)).String()
}

func toBase(human string, decimals uint8) (decimal.Decimal, error) {
	if err := checkDecimals(decimals); err != nil {
		return decimal.Zero, err
	}

	value, err := Parse(human)
	if err != nil {
		return decimal.Zero, err
	}

	base := value.Shift(int32(decimals))
	if !base.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, human, decimals)
	}
	return base, nil
}

func checkDecimals(decimals uint8) error {
	if decimals > MaxDecimals {
		return fmt.Errorf("%w: precision %d exceeds %d", ErrInvalidAmount, decimals, MaxDecimals)
	}
	return nil
}
