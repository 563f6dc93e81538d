package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-swap/config"
	"solana-swap/pkg/chain"
	"solana-swap/pkg/client"
	"solana-swap/pkg/fee"
	"solana-swap/pkg/logger"
	"solana-swap/pkg/metrics"
	"solana-swap/pkg/quote"
	"solana-swap/pkg/swap"
	"solana-swap/pkg/token"
	"solana-swap/pkg/txbuilder"
	"solana-swap/pkg/wallet"
)

// app is the dependency graph shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	registry *token.Registry
	fee      *fee.Calculator
	jupiter  *client.Jupiter
	quoter   *quote.Quoter
	conn     *chain.Connection
	wallet   *wallet.Keypair
	json     bool
}

// newApp loads configuration and wires the clients. The wallet is loaded
// when one is configured, and its absence is an error when needWallet is set.
func newApp(cmd *cobra.Command, needWallet bool, walletOpts ...wallet.Option) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log, err := logger.New(level, cfg.LogJSON)
	if err != nil {
		return nil, err
	}

	feeCfg, err := cfg.FeeConfig()
	if err != nil {
		return nil, err
	}
	calc, err := fee.NewCalculator(feeCfg)
	if err != nil {
		return nil, err
	}

	conn, err := chain.NewConnection(cfg.ChainConfig(), log.Named("chain"))
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	jup := client.NewJupiter(cfg.AggregatorURL,
		client.WithRateLimit(cfg.AggregatorRPS, cfg.AggregatorBurst),
		client.WithLogger(log.Named("jupiter")))

	a := &app{
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		registry: token.Default(),
		fee:      calc,
		jupiter:  jup,
		quoter:   quote.NewQuoter(jup, log.Named("quote"), m),
		conn:     conn,
		json:     jsonOutput,
	}

	if needWallet || cfg.HasWallet() {
		kp, err := wallet.Load(cfg.PrivateKey, cfg.KeypairPath, walletOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w. Please set SOLANA_SWAP_PRIVATE_KEY or SOLANA_SWAP_KEYPAIR_PATH", err)
		}
		a.wallet = kp
		log.Debug("wallet loaded", zap.String("address", kp.PublicKey().String()))
	}

	return a, nil
}

// orchestrator builds a swap orchestrator on top of the app's clients.
func (a *app) orchestrator(notifier swap.Notifier, confirmer swap.Confirmer) (*swap.Orchestrator, error) {
	deps := swap.Deps{
		Registry:   a.registry,
		Quoter:     a.quoter,
		Fee:        a.fee,
		Builder:    txbuilder.New(a.fee, a.conn, a.logger.Named("txbuilder")),
		Connection: a.conn,
		Confirmer:  confirmer,
		Notifier:   notifier,
		Logger:     a.logger.Named("swap"),
		Metrics:    a.metrics,
	}
	if a.wallet != nil {
		deps.Wallet = a.wallet
	}

	return swap.New(deps,
		swap.WithSlippage(a.cfg.DefaultSlippage),
		swap.WithPriceImpactThreshold(a.cfg.PriceImpactThreshold),
		swap.WithDebounce(a.cfg.QuoteDebounce))
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// promptApproval is the signing step of the interactive wallet.
func promptApproval(_ context.Context, tx *solana.Transaction) bool {
	fmt.Printf("\n  Transaction: %d instructions, fee payer %s\n",
		len(tx.Message.Instructions), color.CyanString(tx.Message.AccountKeys[0].String()))
	return promptYesNo("Sign and send this transaction?")
}

// promptConfirmer asks on the terminal before a high impact trade.
var promptConfirmer = swap.ConfirmerFunc(func(_ context.Context, impactPct float64) bool {
	color.Red("\nWarning: price impact is %.2f%%, you may receive much less than expected.", impactPct)
	return promptYesNo("Continue with this swap?")
})
