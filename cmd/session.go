package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-swap/pkg/parser"
	"solana-swap/pkg/swap"
	"solana-swap/pkg/wallet"
)

const sessionHelp = `Start an interactive session. Every edit re-quotes in the background and
only the latest quote is shown.

Commands inside the session:
  <amount>                     set the amount to sell
  swap 1 SOL to USDC           set amount and tokens at once
  from <token> / to <token>    choose the tokens
  flip                         exchange the two tokens
  slippage [pct]               set slippage, or toggle between 0.5% and 1%
  show                         show the current quote
  submit                       execute the current quote
  balance                      show wallet balances
  help / quit`

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an interactive swap session",
	Long:  sessionHelp,
	Run:   runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd, true, wallet.WithApproval(promptApproval))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if a.cfg.MetricsAddr != "" {
		srv := serveMetrics(a)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orc, err := a.orchestrator(swap.NotifierFunc(printEvent), promptConfirmer)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer orc.Close()

	color.Green("\nSolana swap session")
	fmt.Printf("Wallet: %s\n", color.CyanString(a.wallet.PublicKey().String()))
	printSession(orc)
	fmt.Println("Type 'help' for commands.")

	for {
		fmt.Print("> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				printError(err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		quit, err := handleSessionLine(ctx, a, orc, strings.TrimSpace(line))
		if err != nil {
			color.Red("  %v", err)
		}
		if quit {
			return
		}
	}
}

func handleSessionLine(ctx context.Context, a *app, orc *swap.Orchestrator, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Println(sessionHelp)
		return false, nil
	case "from":
		return false, orc.SelectInputToken(parser.NormalizeTokenSymbol(arg))
	case "to":
		return false, orc.SelectOutputToken(parser.NormalizeTokenSymbol(arg))
	case "flip":
		return false, orc.Flip()
	case "slippage":
		if arg == "" {
			next, err := orc.ToggleSlippage()
			if err == nil {
				fmt.Printf("  slippage %.1f%%\n", next)
			}
			return false, err
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			return false, fmt.Errorf("invalid slippage '%s'", arg)
		}
		return false, orc.SetSlippage(pct)
	case "show", "quote":
		orc.Wait()
		printSession(orc)
		return false, nil
	case "submit", "go":
		return false, submitSession(ctx, orc)
	case "balance":
		s := orc.Snapshot()
		balances, err := fetchBalances(ctx, a.conn, *a.wallet.PublicKey(), a.registry.All())
		if err != nil {
			return false, err
		}
		for _, b := range balances {
			marker := " "
			if b.Token == s.Input.Symbol || b.Token == s.Output.Symbol {
				marker = "*"
			}
			fmt.Printf(" %s %-8s %s\n", marker, color.YellowString(b.Token), b.Amount)
		}
		return false, nil
	case "swap":
		req, err := parser.ParseSwapCommand(line)
		if err != nil {
			return false, err
		}
		if err := orc.SelectInputToken(req.SourceToken); err != nil {
			return false, err
		}
		if err := orc.SelectOutputToken(req.DestToken); err != nil {
			return false, err
		}
		return false, orc.SetInputAmount(req.Amount)
	default:
		// a bare number is an amount edit
		return false, orc.SetInputAmount(fields[0])
	}
}

func submitSession(ctx context.Context, orc *swap.Orchestrator) error {
	orc.Wait()
	if !orc.CanSubmit() {
		return fmt.Errorf("nothing to submit yet, enter an amount and wait for a quote")
	}

	displayQuote(orc.Display())

	// the wallet asks for approval before signing
	result, err := orc.Submit(ctx)
	if err != nil {
		if errors.Is(err, swap.ErrDeclined) || errors.Is(err, wallet.ErrRejected) {
			fmt.Println("  cancelled")
			return nil
		}
		return err
	}
	displayResult(result)
	return nil
}

func printEvent(e swap.Event) {
	switch e.Kind {
	case swap.EventQuoteUpdated:
		color.Cyan("\n  quote: %s", e.Message)
	case swap.EventTokenSwitched:
		color.Yellow("\n  %s", e.Message)
	case swap.EventSubmitted:
		fmt.Printf("\n  transaction sent: %s\n", color.CyanString(e.Signature))
	case swap.EventSettled:
		// printed by submitSession
	case swap.EventQuoteFailed, swap.EventInvalidAmount, swap.EventSwapFailed:
		if e.Err != nil {
			color.Red("\n  %s: %v", e.Message, e.Err)
		} else {
			color.Red("\n  %s", e.Message)
		}
	default:
		fmt.Printf("\n  %s\n", e.Message)
	}
}

func printSession(orc *swap.Orchestrator) {
	s := orc.Snapshot()
	fmt.Printf("\n  %s -> %s, slippage %.1f%%\n", color.YellowString(s.Input.Symbol), color.YellowString(s.Output.Symbol), s.SlippagePct)

	if d := orc.Display(); d != nil {
		displayQuote(d)
		return
	}
	if s.Loading {
		fmt.Println("  fetching quote...")
		return
	}
	fmt.Println("  no quote yet")
}

func serveMetrics(a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
	return srv
}
