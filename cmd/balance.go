package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/chain"
	"solana-swap/pkg/token"
	"solana-swap/pkg/types"
)

var balanceAddress string

var balanceCmd = &cobra.Command{
	Use:   "balance [token...]",
	Short: "Show wallet balances",
	Long: `Show the balance of every supported token, or of the given tokens, for the
configured wallet or for --address.

Examples:
  solana-swap balance
  solana-swap balance SOL USDC
  solana-swap balance EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
  solana-swap balance --address <wallet-address>`,
	Run: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().StringVar(&balanceAddress, "address", "", "Wallet address to inspect instead of the configured wallet")
}

func runBalance(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd, balanceAddress == "")
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	owner := a.wallet.PublicKey()
	if balanceAddress != "" {
		pk, err := solana.PublicKeyFromBase58(balanceAddress)
		if err != nil {
			printError(fmt.Errorf("invalid address '%s': %w", balanceAddress, err))
			os.Exit(1)
		}
		owner = &pk
	}

	tokens := a.registry.All()
	if len(args) > 0 {
		tokens = make([]token.Token, 0, len(args))
		for _, symbol := range args {
			t, err := lookupToken(a.registry, symbol)
			if err != nil {
				printError(err)
				os.Exit(1)
			}
			tokens = append(tokens, t)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Fetching balances..."
		s.Start()
	}
	balances, err := fetchBalances(cmd.Context(), a.conn, *owner, tokens)
	if !a.json {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(balances, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     BALANCES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Wallet: %s\n\n", color.CyanString(owner.String()))
	for _, b := range balances {
		fmt.Printf("  %-10s %s\n", color.YellowString(b.Token), b.Amount)
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// lookupToken accepts a symbol or a mint address.
func lookupToken(reg *token.Registry, arg string) (token.Token, error) {
	t, err := reg.Find(arg)
	if err == nil {
		return t, nil
	}
	mint, mintErr := solana.PublicKeyFromBase58(arg)
	if mintErr != nil {
		return token.Token{}, err
	}
	return reg.FindByMint(mint)
}

func fetchBalances(ctx context.Context, conn *chain.Connection, owner solana.PublicKey, tokens []token.Token) ([]types.Balance, error) {
	balances := make([]types.Balance, 0, len(tokens))
	for _, t := range tokens {
		var (
			base uint64
			err  error
		)
		if t.IsNative() {
			base, err = conn.Balance(ctx, owner)
		} else {
			base, err = conn.TokenBalance(ctx, owner, t.Mint)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Symbol, err)
		}
		balances = append(balances, types.Balance{
			Token:  t.Symbol,
			Amount: amount.FormatBaseUnits(base, t.Decimals),
		})
	}
	return balances, nil
}
