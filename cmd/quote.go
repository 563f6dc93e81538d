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
	"github.com/spf13/cobra"

	"solana-swap/pkg/parser"
	"solana-swap/pkg/swap"
	"solana-swap/pkg/types"
)

var quoteSlippage float64

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Show the best route for a swap without trading",
	Long: `Fetch a quote from the Jupiter aggregator and show the expected output,
price impact, protocol fee and minimum received. No wallet is needed.

Examples:
  solana-swap quote 1 SOL to USDC
  solana-swap quote 250 USDC to BONK --slippage 1`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Float64Var(&quoteSlippage, "slippage", 0, "Slippage tolerance in percent (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd, false)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	orc, err := a.orchestrator(nil, nil)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer orc.Close()

	if _, err := prepareQuote(cmd.Context(), a, orc, args, quoteSlippage); err != nil {
		printError(err)
		os.Exit(1)
	}

	d := orc.Display()
	if a.json {
		jsonData, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayQuote(d)
}

// prepareQuote parses a swap command, loads it into orc and fetches a quote.
func prepareQuote(ctx context.Context, a *app, orc *swap.Orchestrator, args []string, slippage float64) (*types.SwapRequest, error) {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	if err := parser.ValidateSwapRequest(req); err != nil {
		return nil, err
	}
	if req.SourceToken == req.DestToken {
		return nil, fmt.Errorf("source and destination token are both %s", req.SourceToken)
	}

	if err := orc.SelectInputToken(req.SourceToken); err != nil {
		return nil, err
	}
	if err := orc.SelectOutputToken(req.DestToken); err != nil {
		return nil, err
	}
	if slippage > 0 {
		if err := orc.SetSlippage(slippage); err != nil {
			return nil, err
		}
	}
	if err := orc.SetInputAmount(req.Amount); err != nil {
		return nil, err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	_, err = orc.Refresh(ctx)
	if !a.json {
		s.Stop()
	}
	if err != nil {
		return nil, err
	}
	if orc.Display() == nil {
		return nil, fmt.Errorf("no route found for %s %s to %s", req.Amount, req.SourceToken, req.DestToken)
	}

	return req, nil
}

func displayQuote(d *types.QuoteDisplay) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", d.SourceAmount, color.YellowString(d.SourceToken))
	fmt.Printf("  To:                ~%s %s\n", d.DestAmount, color.YellowString(d.DestToken))
	fmt.Printf("  Rate:              %s\n", d.Rate)
	if d.HighImpact {
		fmt.Printf("  Price Impact:      %s\n", color.RedString(d.PriceImpact))
	} else {
		fmt.Printf("  Price Impact:      %s\n", d.PriceImpact)
	}
	fmt.Printf("  Slippage:          %s\n", d.Slippage)
	if d.MinReceived != "" {
		fmt.Printf("  Minimum Received:  %s\n", d.MinReceived)
	}
	fmt.Printf("  Fee (%s):        %s\n", d.FeeRate, d.Fee)
	fmt.Printf("  Fee Recipient:     %s\n", color.HiBlackString(d.FeeRecipient))
	fmt.Printf("  Route:             %s\n", color.CyanString(d.Route))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
