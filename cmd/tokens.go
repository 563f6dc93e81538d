package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solana-swap/pkg/token"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens that can be swapped.

Examples:
  solana-swap list-tokens
  solana-swap list-tokens --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

type tokenJSON struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
	Kind     string `json:"kind"`
	LogoURI  string `json:"logo_uri,omitempty"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	tokens := filterTokens(token.Default().All(), filterSymbol)

	if jsonOutput {
		out := make([]tokenJSON, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, tokenJSON{
				Symbol:   t.Symbol,
				Name:     t.Name,
				Mint:     t.Mint.String(),
				Decimals: t.Decimals,
				Kind:     t.Kind.String(),
				LogoURI:  t.LogoURI,
			})
		}
		jsonData, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		fmt.Println(string(jsonData))
		return
	}

	displayTokens(tokens)
}

func filterTokens(tokens []token.Token, symbol string) []token.Token {
	if symbol == "" {
		return tokens
	}
	var filtered []token.Token
	for _, t := range tokens {
		if strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(symbol)) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func displayTokens(tokens []token.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	for _, t := range tokens {
		fmt.Printf("  %-10s  %-16s %2d decimals  %s\n",
			color.YellowString(t.Symbol),
			t.Name,
			t.Decimals,
			color.HiBlackString(t.Mint.String()))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
