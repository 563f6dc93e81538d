package parser

import (
	"fmt"
	"regexp"
	"strings"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/types"
)

var swapPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)\s+([A-Z0-9]+)\s+(?:TO|FOR|->)\s+([A-Z0-9]+)$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 SOL for BONK"
//   - "100 USDC -> SOL"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 SOL to USDC')")
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: NormalizeTokenSymbol(matches[2]),
		DestToken:   NormalizeTokenSymbol(matches[3]),
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if _, err := amount.Parse(req.Amount); err != nil {
		return err
	}
	if amount.IsZero(req.Amount) {
		return fmt.Errorf("amount must be greater than zero")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WSOL":   "SOL",
		"USDC.E": "USDC",
		"USD":    "USDC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
