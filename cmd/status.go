package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"solana-swap/pkg/chain"
	"solana-swap/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <signature>",
	Short: "Check the status of a swap transaction",
	Long: `Check the on-chain status of a swap by its transaction signature.

Examples:
  solana-swap status 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb...
  solana-swap status <signature> --watch
  solana-swap status <signature> --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until finalized")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	sig, err := solana.SignatureFromBase58(args[0])
	if err != nil {
		printError(fmt.Errorf("invalid signature: %w", err))
		os.Exit(1)
	}

	a, err := newApp(cmd, false)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	if watchStatus {
		watchSwapStatus(a, sig)
	} else {
		checkSwapStatus(cmd.Context(), a, sig)
	}
}

func fetchStatus(ctx context.Context, conn *chain.Connection, sig solana.Signature) (*types.SwapStatus, error) {
	res, err := conn.SignatureStatus(ctx, sig)
	if err != nil {
		return nil, err
	}

	status := &types.SwapStatus{Signature: sig.String(), Target: string(conn.Commitment())}
	switch {
	case res == nil:
		status.Status = "not_found"
		status.Message = "the cluster does not know this signature yet"
	case res.Err != nil:
		status.Status = "failed"
		status.Message = fmt.Sprintf("%v", res.Err)
		status.Slot = res.Slot
	default:
		status.Status = string(res.ConfirmationStatus)
		status.Slot = res.Slot
		status.Confirmations = res.Confirmations
		status.Reached = chain.Reached(res.ConfirmationStatus, conn.Commitment())
	}
	return status, nil
}

func checkSwapStatus(ctx context.Context, a *app, sig solana.Signature) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	status, err := fetchStatus(ctx, a.conn, sig)
	if !a.json {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(status)
	}
}

func watchSwapStatus(a *app, sig solana.Signature) {
	if a.json {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(sig.String()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		status, err := fetchStatus(ctx, a.conn, sig)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayStatus(status)
			if status.Status == "failed" || status.Status == string(rpc.ConfirmationStatusFinalized) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayStatus(status *types.SwapStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Signature:       %s\n", color.CyanString(status.Signature))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status.Status))
	if status.Slot > 0 {
		fmt.Printf("  Slot:            %d\n", status.Slot)
	}
	if status.Confirmations != nil {
		fmt.Printf("  Confirmations:   %d\n", *status.Confirmations)
	}
	if status.Reached {
		fmt.Printf("  Target:          %s %s\n", status.Target, color.GreenString("reached"))
	} else {
		fmt.Printf("  Target:          %s %s\n", status.Target, color.YellowString("pending"))
	}
	if status.Message != "" {
		fmt.Printf("  Message:         %s\n", status.Message)
	}
	fmt.Printf("  Explorer:        %s\n", color.HiBlackString("https://solscan.io/tx/"+status.Signature))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "FINALIZED", "CONFIRMED":
		return color.GreenString(status)
	case "PROCESSED", "NOT_FOUND":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	default:
		return status
	}
}
