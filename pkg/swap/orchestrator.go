package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/fee"
	"solana-swap/pkg/logger"
	"solana-swap/pkg/metrics"
	"solana-swap/pkg/quote"
	"solana-swap/pkg/token"
	"solana-swap/pkg/wallet"
)

const (
	DefaultSlippagePct          = 0.5
	AltSlippagePct              = 1.0
	DefaultPriceImpactThreshold = 5.0
)

// Deps are the orchestrator's collaborators. Registry and Quoter are
// required; the rest are only needed to submit.
type Deps struct {
	Registry   *token.Registry
	Quoter     Quoter
	Fee        *fee.Calculator
	Builder    Builder
	Wallet     wallet.Wallet
	Connection Connection
	Confirmer  Confirmer
	Notifier   Notifier
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type options struct {
	debounce        time.Duration
	impactThreshold float64
	slippage        float64
}

// Option configures the orchestrator.
type Option func(*options)

// WithDebounce delays each quote request by d. A newer edit within d
// cancels the request before it reaches the aggregator.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithPriceImpactThreshold sets the impact percentage above which Submit
// asks the Confirmer.
func WithPriceImpactThreshold(pct float64) Option {
	return func(o *options) {
		o.impactThreshold = pct
	}
}

// WithSlippage sets the initial slippage percentage.
func WithSlippage(pct float64) Option {
	return func(o *options) {
		o.slippage = pct
	}
}

// Orchestrator drives a swap session from input edits to settlement.
type Orchestrator struct {
	deps Deps
	opts options

	mu      sync.Mutex
	session Session
	tracker quote.Tracker
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an orchestrator with the registry's first two tokens selected.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Registry.Len() < 2 {
		return nil, fmt.Errorf("token registry needs at least two tokens")
	}
	if deps.Quoter == nil {
		return nil, fmt.Errorf("quoter is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	deps.Logger = logger.OrNop(deps.Logger)

	o := options{
		impactThreshold: DefaultPriceImpactThreshold,
		slippage:        DefaultSlippagePct,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := quote.SlippageBps(o.slippage); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	orc := &Orchestrator{
		deps:   deps,
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
		session: Session{
			ID:          uuid.NewString(),
			Input:       deps.Registry.At(0),
			Output:      deps.Registry.At(1),
			SlippagePct: o.slippage,
			State:       Idle,
		},
	}
	return orc, nil
}

// Close cancels outstanding quote requests and waits for them to finish.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// Wait blocks until all launched quote requests have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Snapshot returns a copy of the session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// SelectInputToken sets the token to sell. Choosing the current output
// token moves the output to the previous input token.
func (o *Orchestrator) SelectInputToken(symbol string) error {
	t, err := o.deps.Registry.Find(symbol)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	prev := o.session.Input
	o.session.Input = t
	var switched *Event
	if t.Equal(o.session.Output) {
		o.session.Output = o.replacement(prev, t)
		switched = o.eventLocked(EventTokenSwitched, fmt.Sprintf("output switched to %s", o.session.Output.Symbol))
	}
	ev := o.requoteLocked()
	o.mu.Unlock()

	return o.finish(switched, ev)
}

// SelectOutputToken sets the token to buy. Choosing the current input
// token moves the input to the previous output token.
func (o *Orchestrator) SelectOutputToken(symbol string) error {
	t, err := o.deps.Registry.Find(symbol)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	prev := o.session.Output
	o.session.Output = t
	var switched *Event
	if t.Equal(o.session.Input) {
		o.session.Input = o.replacement(prev, t)
		switched = o.eventLocked(EventTokenSwitched, fmt.Sprintf("input switched to %s", o.session.Input.Symbol))
	}
	ev := o.requoteLocked()
	o.mu.Unlock()

	return o.finish(switched, ev)
}

func (o *Orchestrator) replacement(prev, chosen token.Token) token.Token {
	if !prev.Equal(chosen) {
		return prev
	}
	return o.deps.Registry.Other(chosen)
}

// SetInputAmount sets the amount to sell in human units. An empty string
// clears the quote.
func (o *Orchestrator) SetInputAmount(s string) error {
	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	o.session.InputAmount = s
	ev := o.requoteLocked()
	o.mu.Unlock()

	return o.finish(ev)
}

// SetSlippage sets the slippage tolerance in percent.
func (o *Orchestrator) SetSlippage(pct float64) error {
	if _, err := quote.SlippageBps(pct); err != nil {
		return err
	}

	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	o.session.SlippagePct = pct
	ev := o.requoteLocked()
	o.mu.Unlock()

	return o.finish(ev)
}

// ToggleSlippage switches between 0.5% and 1% and returns the new value.
func (o *Orchestrator) ToggleSlippage() (float64, error) {
	o.mu.Lock()
	next := AltSlippagePct
	if o.session.SlippagePct != DefaultSlippagePct {
		next = DefaultSlippagePct
	}
	o.mu.Unlock()

	return next, o.SetSlippage(next)
}

// Flip swaps the input and output tokens, keeping the input amount.
func (o *Orchestrator) Flip() error {
	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	o.session.Input, o.session.Output = o.session.Output, o.session.Input
	ev := o.requoteLocked()
	o.mu.Unlock()

	return o.finish(ev)
}

// Refresh re-quotes the current inputs and waits for the answer.
func (o *Orchestrator) Refresh(ctx context.Context) (*quote.Result, error) {
	o.mu.Lock()
	if o.session.InFlight {
		o.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	req, ev := o.prepareLocked()
	if req == nil {
		o.mu.Unlock()
		o.notify(ev)
		if ev != nil {
			return nil, ev.Err
		}
		return nil, nil
	}
	tk := o.tracker.Begin(ctx)
	o.session.State = QuotePending
	o.session.Loading = true
	o.mu.Unlock()

	res, err := o.deps.Quoter.GetQuote(tk.Ctx, *req)
	o.applyQuote(tk, res, err)
	return res, err
}

// CanSubmit reports whether a wallet is connected, a route is present and
// nothing is in flight.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canSubmitLocked()
}

func (o *Orchestrator) canSubmitLocked() bool {
	return o.deps.Wallet != nil && o.deps.Wallet.Connected() &&
		o.session.Route != nil &&
		o.session.State == Quoted &&
		!o.session.InFlight
}

// prepareLocked validates the session inputs. It returns a nil request when
// there is nothing to quote, with an event when the amount is invalid.
func (o *Orchestrator) prepareLocked() (*quote.Request, *Event) {
	s := &o.session

	if amount.IsZero(s.InputAmount) {
		o.tracker.Invalidate()
		o.clearQuoteLocked()
		return nil, nil
	}
	if _, err := amount.ParseBaseUnits(s.InputAmount, s.Input.Decimals); err != nil {
		return nil, o.invalidAmountLocked(err)
	}

	return &quote.Request{
		Input:       s.Input,
		Output:      s.Output,
		Amount:      s.InputAmount,
		SlippagePct: s.SlippagePct,
	}, nil
}

func (o *Orchestrator) invalidAmountLocked(err error) *Event {
	o.tracker.Invalidate()
	o.clearQuoteLocked()
	o.session.LastError = err
	ev := o.eventLocked(EventInvalidAmount, fmt.Sprintf("invalid amount '%s'", o.session.InputAmount))
	ev.Err = err
	return ev
}

func (o *Orchestrator) clearQuoteLocked() {
	o.session.Route = nil
	o.session.Quote = nil
	o.session.OutputAmount = ""
	o.session.PriceImpactPct = 0
	o.session.Loading = false
	o.session.State = Idle
}

// requoteLocked launches a quote task for the current inputs under a fresh
// ticket, superseding any outstanding one.
func (o *Orchestrator) requoteLocked() *Event {
	req, ev := o.prepareLocked()
	if req == nil {
		return ev
	}

	tk := o.tracker.Begin(o.ctx)
	o.session.State = QuotePending
	o.session.Loading = true
	o.session.Route = nil
	o.session.Quote = nil

	o.wg.Add(1)
	go o.runQuote(tk, *req)
	return nil
}

func (o *Orchestrator) runQuote(tk quote.Ticket, req quote.Request) {
	defer o.wg.Done()

	if o.opts.debounce > 0 {
		timer := time.NewTimer(o.opts.debounce)
		select {
		case <-tk.Ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	res, err := o.deps.Quoter.GetQuote(tk.Ctx, req)
	o.applyQuote(tk, res, err)
}

// applyQuote stores a quote result if its ticket is still the latest.
func (o *Orchestrator) applyQuote(tk quote.Ticket, res *quote.Result, err error) {
	o.mu.Lock()

	if !tk.Current() {
		o.mu.Unlock()
		o.deps.Metrics.QuoteStale()
		o.deps.Logger.Debug("discarding stale quote", zap.Uint64("seq", tk.Seq))
		return
	}

	s := &o.session
	s.Loading = false

	var ev *Event
	switch {
	case errors.Is(err, context.Canceled):
		// a cancelled refresh keeps the quote it started from
		if s.Route != nil {
			s.State = Quoted
		} else {
			o.clearQuoteLocked()
		}
	case errors.Is(err, amount.ErrInvalidAmount):
		ev = o.invalidAmountLocked(err)
	case err != nil:
		o.clearQuoteLocked()
		s.LastError = err
		ev = o.eventLocked(EventQuoteFailed, "failed to get quote, please try again")
		ev.Err = err
	case res == nil:
		o.clearQuoteLocked()
	default:
		s.Route = res.Route
		s.Quote = res
		s.OutputAmount = res.OutputAmount
		s.PriceImpactPct = res.PriceImpactPct
		s.LastError = nil
		s.State = Quoted
		o.deps.Metrics.SetPriceImpact(res.PriceImpactPct)
		ev = o.eventLocked(EventQuoteUpdated, fmt.Sprintf("%s %s -> %s %s", s.InputAmount, s.Input.Symbol, s.OutputAmount, s.Output.Symbol))
	}
	o.mu.Unlock()

	o.notify(ev)
}

func (o *Orchestrator) eventLocked(kind EventKind, msg string) *Event {
	return &Event{
		Kind:      kind,
		SessionID: o.session.ID,
		State:     o.session.State,
		Message:   msg,
	}
}

// finish publishes events raised by an edit and surfaces an invalid amount
// to the caller.
func (o *Orchestrator) finish(events ...*Event) error {
	o.notify(events...)
	for _, ev := range events {
		if ev != nil && ev.Kind == EventInvalidAmount {
			return ev.Err
		}
	}
	return nil
}

func (o *Orchestrator) notify(events ...*Event) {
	for _, ev := range events {
		if ev != nil {
			o.deps.Notifier.Notify(*ev)
		}
	}
}
