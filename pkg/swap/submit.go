package swap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/quote"
	"solana-swap/pkg/txbuilder"
	"solana-swap/pkg/types"
)

// Submit executes the current route: high impact confirmation, build, sign,
// broadcast and confirm. On success the session is reset; on failure the
// route and amounts are kept so the user can retry.
func (o *Orchestrator) Submit(ctx context.Context) (*types.SwapResult, error) {
	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if !o.canSubmitLocked() || o.deps.Builder == nil || o.deps.Connection == nil {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	o.session.InFlight = true
	s := o.session
	o.mu.Unlock()

	log := o.deps.Logger.With(zap.String("session", s.ID))

	if s.PriceImpactPct > o.opts.impactThreshold {
		if o.deps.Confirmer == nil || !o.deps.Confirmer.ConfirmHighImpact(ctx, s.PriceImpactPct) {
			o.mu.Lock()
			o.session.InFlight = false
			ev := o.eventLocked(EventDeclined, fmt.Sprintf("swap cancelled at %.2f%% price impact", s.PriceImpactPct))
			o.mu.Unlock()

			o.deps.Metrics.SwapDeclined()
			log.Info("high impact swap declined", zap.Float64("price_impact_pct", s.PriceImpactPct))
			o.notify(ev)
			return nil, ErrDeclined
		}
	}

	o.mu.Lock()
	o.session.State = SwapPending
	o.mu.Unlock()

	trader := o.deps.Wallet.PublicKey()
	if trader == nil {
		return nil, o.fail("sign", s, fmt.Errorf("%w: wallet disconnected", ErrSigningRejected))
	}

	tx, err := o.deps.Builder.BuildSwapTransaction(ctx, s.Route, *trader, s.Input, s.Output, s.InputAmount)
	if err != nil {
		return nil, o.fail("build", s, fmt.Errorf("failed to build swap transaction: %w", err))
	}

	signed, err := o.deps.Wallet.SignTransaction(ctx, tx)
	if err != nil {
		return nil, o.fail("sign", s, fmt.Errorf("%w: %w", ErrSigningRejected, err))
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, o.fail("broadcast", s, fmt.Errorf("%w: encode transaction: %w", ErrBroadcastFailed, err))
	}

	o.deps.Metrics.SwapSubmitted()
	sig, err := o.deps.Connection.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, o.fail("broadcast", s, fmt.Errorf("%w: %w", ErrBroadcastFailed, err))
	}
	log.Info("swap broadcast", zap.String("signature", sig.String()))
	o.notify(&Event{Kind: EventSubmitted, SessionID: s.ID, State: SwapPending, Signature: sig.String(), Message: "transaction sent"})

	status, err := o.deps.Connection.ConfirmTransaction(ctx, sig)
	if err != nil {
		return nil, o.fail("confirm", s, fmt.Errorf("%w: %s: %w", ErrConfirmationFailed, sig, err))
	}

	feeBase := uint64(0)
	feeDisplay := ""
	if o.deps.Fee != nil {
		if inputBase, err := amount.ParseBaseUnits(s.InputAmount, s.Input.Decimals); err == nil {
			feeBase = o.deps.Fee.Compute(inputBase)
			feeDisplay = amount.FormatBaseUnits(feeBase, s.Input.Decimals) + " " + s.Input.Symbol
		}
	}

	result := &types.SwapResult{
		SessionID:    s.ID,
		Signature:    sig.String(),
		Status:       string(status),
		SourceAmount: s.InputAmount,
		SourceToken:  s.Input.Symbol,
		DestAmount:   s.OutputAmount,
		DestToken:    s.Output.Symbol,
		Fee:          feeDisplay,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	o.mu.Lock()
	o.tracker.Invalidate()
	settled := o.eventLocked(EventSettled, "swap successful")
	settled.State = Settled
	settled.Signature = result.Signature
	o.session.InputAmount = ""
	o.clearQuoteLocked()
	o.session.InFlight = false
	o.session.LastError = nil
	o.session.ID = uuid.NewString()
	o.mu.Unlock()

	o.deps.Metrics.SwapSettled(s.Input.Symbol, feeBase)
	log.Info("swap settled",
		zap.String("signature", result.Signature),
		zap.String("status", result.Status),
		zap.String("input", s.InputAmount+" "+s.Input.Symbol),
		zap.String("output", s.OutputAmount+" "+s.Output.Symbol))
	o.notify(settled)

	return result, nil
}

// fail returns the session to Quoted with its route intact and reports err.
func (o *Orchestrator) fail(stage string, s Session, err error) error {
	o.mu.Lock()
	o.session.InFlight = false
	o.session.State = Quoted
	o.session.LastError = err
	ev := o.eventLocked(EventSwapFailed, "swap failed, please try again")
	ev.State = Failed
	ev.Err = err
	o.mu.Unlock()

	o.deps.Metrics.SwapFailed(stage)
	o.deps.Logger.Warn("swap failed",
		zap.String("session", s.ID),
		zap.String("stage", stage),
		zap.Bool("account_resolution", errors.Is(err, txbuilder.ErrAccountResolution)),
		zap.Error(err))
	o.notify(ev)
	return err
}

const aggregatorName = "Jupiter Aggregator"

// routeName names the aggregator and, when the route reports them, its venues.
func routeName(r quote.Route) string {
	labeled, ok := r.(interface{ Labels() []string })
	if !ok {
		return aggregatorName
	}
	labels := labeled.Labels()
	if len(labels) == 0 {
		return aggregatorName
	}
	return aggregatorName + " (" + strings.Join(labels, " > ") + ")"
}

// Display formats the current quote, or returns nil when there is none.
func (o *Orchestrator) Display() *types.QuoteDisplay {
	s := o.Snapshot()
	if s.Quote == nil {
		return nil
	}

	d := &types.QuoteDisplay{
		SourceAmount: s.InputAmount,
		SourceToken:  s.Input.Symbol,
		DestAmount:   s.OutputAmount,
		DestToken:    s.Output.Symbol,
		PriceImpact:  fmt.Sprintf("%.2f%%", s.PriceImpactPct),
		HighImpact:   s.PriceImpactPct > o.opts.impactThreshold,
		Slippage:     strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", s.SlippagePct), "0"), ".") + "%",
		Route:        routeName(s.Route),
	}

	if in, err := amount.Parse(s.InputAmount); err == nil && !in.IsZero() {
		if out, err := amount.Parse(s.OutputAmount); err == nil {
			d.Rate = fmt.Sprintf("1 %s = %s %s", s.Input.Symbol, out.Div(in).Round(int32(s.Output.Decimals)).String(), s.Output.Symbol)
		}
	}

	if o.deps.Fee != nil {
		d.FeeRate = o.deps.Fee.DisplayRate()
		d.FeeRecipient = o.deps.Fee.ShortRecipient()
		d.Fee = amount.FormatBaseUnits(o.deps.Fee.Compute(s.Quote.InputBase), s.Input.Decimals) + " " + s.Input.Symbol
	}

	// Worst case output after slippage.
	bps := uint64(s.Quote.SlippageBps)
	if bps <= 10_000 {
		minOut := s.Quote.OutputBase / 10_000 * (10_000 - bps)
		minOut += s.Quote.OutputBase % 10_000 * (10_000 - bps) / 10_000
		d.MinReceived = amount.FormatBaseUnits(minOut, s.Output.Decimals) + " " + s.Output.Symbol
	}

	return d
}
