package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solana-swap/pkg/swap"
	"solana-swap/pkg/types"
)

var (
	noConfirm    bool
	swapSlippage float64
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Perform a token swap",
	Long: `Swap tokens on Solana through the Jupiter aggregator.

The swap and the 0.1% protocol fee are sent in one transaction signed by the
configured wallet (SOLANA_SWAP_PRIVATE_KEY or SOLANA_SWAP_KEYPAIR_PATH).
Trades above the price impact threshold always ask for confirmation.

Examples:
  solana-swap swap 1 SOL to USDC
  solana-swap swap 100 USDC to BONK --slippage 1
  solana-swap swap 0.5 SOL to JUP --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().Float64Var(&swapSlippage, "slippage", 0, "Slippage tolerance in percent (default from config)")
}

func runSwap(cmd *cobra.Command, args []string) {
	// there is no prompt in JSON mode, so consent has to come from --yes
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := requireConsent(jsonOutput, noConfirm); err != nil {
		printJSONFailure(err)
		os.Exit(1)
	}

	a, err := newApp(cmd, true)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	notifier := swap.NotifierFunc(func(e swap.Event) {
		if a.json || e.Kind != swap.EventSubmitted {
			return
		}
		s.Lock()
		s.Suffix = fmt.Sprintf(" Confirming %s...", e.Signature)
		s.Unlock()
	})

	var confirmer swap.Confirmer
	if !a.json {
		confirmer = promptConfirmer
	}

	orc, err := a.orchestrator(notifier, confirmer)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer orc.Close()

	if _, err := prepareQuote(ctx, a, orc, args, swapSlippage); err != nil {
		printError(err)
		os.Exit(1)
	}

	d := orc.Display()
	if !a.json {
		displayQuote(d)
		fmt.Printf("  Wallet: %s\n", color.CyanString(a.wallet.PublicKey().String()))

		if !noConfirm && !promptYesNo("Proceed with swap?") {
			printSuccess("Swap cancelled.")
			os.Exit(0)
		}

		s.Suffix = " Sending transaction..."
		s.Start()
	}

	result, err := orc.Submit(ctx)
	if !a.json {
		s.Stop()
	}

	if err != nil {
		if errors.Is(err, swap.ErrDeclined) {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
		if a.json {
			printJSONFailure(err)
		} else {
			printError(err)
		}
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayResult(result)
}

var errConsentRequired = errors.New("--yes is required with --json")

// requireConsent refuses a non-interactive swap that was not explicitly approved.
func requireConsent(jsonOutput, yes bool) error {
	if jsonOutput && !yes {
		return errConsentRequired
	}
	return nil
}

func printJSONFailure(err error) {
	jsonData, _ := json.MarshalIndent(map[string]string{"status": "failed", "error": err.Error()}, "", "  ")
	fmt.Println(string(jsonData))
}

func displayResult(result *types.SwapResult) {
	color.Green("\n✓ Swap successful!")
	fmt.Printf("  Sold:       %s %s\n", result.SourceAmount, color.YellowString(result.SourceToken))
	fmt.Printf("  Received:   ~%s %s\n", result.DestAmount, color.YellowString(result.DestToken))
	fmt.Printf("  Fee:        %s\n", result.Fee)
	fmt.Printf("  Status:     %s\n", getColoredStatus(result.Status))
	fmt.Printf("  Signature:  %s\n", color.CyanString(result.Signature))

	fmt.Println("\nYou can check the transaction using:")
	color.Cyan("  solana-swap status %s\n", result.Signature)
	fmt.Printf("  https://solscan.io/tx/%s\n\n", result.Signature)
}
