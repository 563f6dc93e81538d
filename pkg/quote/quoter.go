package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/logger"
	"solana-swap/pkg/metrics"
	"solana-swap/pkg/token"
)

var (
	// ErrQuoteUnavailable covers aggregator and network failures while quoting.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrSameToken means input and output are the same token.
	ErrSameToken = errors.New("input and output token are the same")
	// ErrInvalidSlippage means slippage is outside [0, 100] percent.
	ErrInvalidSlippage = errors.New("invalid slippage")
)

// Request is a trade to be quoted.
type Request struct {
	Input       token.Token
	Output      token.Token
	Amount      string  // human units of Input
	SlippagePct float64 // 0.5 means 0.5%
}

// Result is the best route for a request.
type Result struct {
	Route          Route
	InputBase      uint64
	OutputBase     uint64
	OutputAmount   string  // human units of Output
	PriceImpactPct float64 // percent, 1.0 means 1%
	SlippageBps    uint16
}

// Quoter turns trade requests into ranked routes.
type Quoter struct {
	agg     Aggregator
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewQuoter creates a quoter. logger and m may be nil.
func NewQuoter(agg Aggregator, l *zap.Logger, m *metrics.Metrics) *Quoter {
	return &Quoter{
		agg:     agg,
		logger:  logger.OrNop(l),
		metrics: m,
	}
}

// SlippageBps converts a slippage percentage to basis points.
func SlippageBps(pct float64) (uint16, error) {
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("%w: %v%%", ErrInvalidSlippage, pct)
	}
	return uint16(math.Round(pct * 100)), nil
}

// GetQuote fetches routes for req and selects the first-ranked one.
// An empty or zero amount yields (nil, nil) without contacting the aggregator.
func (q *Quoter) GetQuote(ctx context.Context, req Request) (*Result, error) {
	if req.Input.Equal(req.Output) {
		return nil, ErrSameToken
	}
	if amount.IsZero(req.Amount) {
		return nil, nil
	}

	inputBase, err := amount.ParseBaseUnits(req.Amount, req.Input.Decimals)
	if err != nil {
		return nil, err
	}

	bps, err := SlippageBps(req.SlippagePct)
	if err != nil {
		return nil, err
	}

	params := RouteParams{
		InputMint:   req.Input.Mint,
		OutputMint:  req.Output.Mint,
		Amount:      inputBase,
		SlippageBps: bps,
	}

	q.metrics.QuoteRequested()
	start := time.Now()
	routes, err := q.agg.Routes(ctx, params)
	q.metrics.ObserveQuote(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		q.metrics.QuoteFailed()
		q.logger.Warn("aggregator quote failed",
			zap.String("input", req.Input.Symbol),
			zap.String("output", req.Output.Symbol),
			zap.Uint64("amount", inputBase),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	if len(routes) == 0 {
		q.metrics.QuoteFailed()
		return nil, fmt.Errorf("%w: no route from %s to %s", ErrQuoteUnavailable, req.Input.Symbol, req.Output.Symbol)
	}

	best := routes[0]
	result := &Result{
		Route:          best,
		InputBase:      inputBase,
		OutputBase:     best.OutAmount(),
		OutputAmount:   amount.FormatBaseUnits(best.OutAmount(), req.Output.Decimals),
		PriceImpactPct: best.PriceImpact() * 100,
		SlippageBps:    bps,
	}

	q.logger.Debug("quote received",
		zap.String("input", req.Input.Symbol),
		zap.String("output", req.Output.Symbol),
		zap.Uint64("in_amount", inputBase),
		zap.Uint64("out_amount", result.OutputBase),
		zap.Float64("price_impact_pct", result.PriceImpactPct),
		zap.Int("routes", len(routes)))

	return result, nil
}
