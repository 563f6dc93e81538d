package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "solana-swap",
	Short: "A CLI for Solana token swaps routed through the Jupiter aggregator",
	Long: `solana-swap is a command-line tool that swaps Solana tokens in a single
atomic transaction. Routes come from the Jupiter aggregator; a 0.1% protocol
fee is transferred in the same transaction as the swap.

Examples:
  solana-swap quote 1 SOL to USDC
  solana-swap swap 1.5 SOL to USDC
  solana-swap session
  solana-swap list-tokens
  solana-swap balance
  solana-swap status <signature>`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// stdin is shared by every prompt so buffered input is never lost between readers.
var stdin = bufio.NewReader(os.Stdin)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

func promptYesNo(question string) bool {
	fmt.Printf("\n%s (y/N): ", question)

	response, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
