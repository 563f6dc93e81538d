package swap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-swap/pkg/amount"
	"solana-swap/pkg/chain"
	"solana-swap/pkg/fee"
	"solana-swap/pkg/metrics"
	"solana-swap/pkg/quote"
	"solana-swap/pkg/token"
	"solana-swap/pkg/txbuilder"
	"solana-swap/pkg/wallet"
)

var jupiterProgram = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")

type testRoute struct {
	out    uint64
	impact float64
}

func (r testRoute) OutAmount() uint64 { return r.out }
func (r testRoute) PriceImpact() float64 { return r.impact }
func (r testRoute) Instructions(_ context.Context, trader solana.PublicKey) (*quote.SwapInstructions, error) {
	return &quote.SwapInstructions{
		Swap: solana.NewInstruction(jupiterProgram, solana.AccountMetaSlice{
			solana.NewAccountMeta(trader, true, true),
		}, []byte{0xe5, 0x17}),
	}, nil
}

// gatedAggregator answers each amount with a fixed route. Amounts with a gate
// block until the gate is closed, ignoring cancellation like a network call
// already in flight.
type gatedAggregator struct {
	mu     sync.Mutex
	routes map[uint64]testRoute
	gates  map[uint64]chan struct{}
	err    error
	calls  []quote.RouteParams
}

func newAggregator() *gatedAggregator {
	return &gatedAggregator{routes: map[uint64]testRoute{}, gates: map[uint64]chan struct{}{}}
}

func (a *gatedAggregator) Routes(_ context.Context, params quote.RouteParams) ([]quote.Route, error) {
	a.mu.Lock()
	a.calls = append(a.calls, params)
	gate := a.gates[params.Amount]
	route, ok := a.routes[params.Amount]
	err := a.err
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []quote.Route{route}, nil
}

func (a *gatedAggregator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type stubChain struct{}

func (stubChain) LatestBlockhash(context.Context) (solana.Hash, error) { return solana.Hash{1}, nil }
func (stubChain) LookupTables(context.Context, []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	return nil, nil
}
func (stubChain) AccountExists(context.Context, solana.PublicKey) (bool, error) { return true, nil }

type stubConnection struct {
	mu         sync.Mutex
	sent       [][]byte
	sendErr    error
	confirmErr error
}

func (c *stubConnection) SendRawTransaction(_ context.Context, raw []byte) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return solana.Signature{}, c.sendErr
	}
	c.sent = append(c.sent, raw)
	return solana.Signature{7}, nil
}

func (c *stubConnection) ConfirmTransaction(context.Context, solana.Signature) (rpc.ConfirmationStatusType, error) {
	if c.confirmErr != nil {
		return "", c.confirmErr
	}
	return rpc.ConfirmationStatusConfirmed, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	orc     *Orchestrator
	agg     *gatedAggregator
	conn    *stubConnection
	events  *recorder
	metrics *metrics.Metrics
	wallet  *wallet.Keypair
}

func newHarness(t *testing.T, confirmer Confirmer, walletOpts ...wallet.Option) *harness {
	t.Helper()

	log := zaptest.NewLogger(t)
	m := metrics.New()
	agg := newAggregator()
	calc := fee.MustCalculator(fee.DefaultConfig())
	kp, err := wallet.NewKeypair(solana.NewWallet().PrivateKey, walletOpts...)
	require.NoError(t, err)

	h := &harness{
		agg:     agg,
		conn:    &stubConnection{},
		events:  &recorder{},
		metrics: m,
		wallet:  kp,
	}

	h.orc, err = New(Deps{
		Registry:   token.Default(),
		Quoter:     quote.NewQuoter(agg, log, m),
		Fee:        calc,
		Builder:    txbuilder.New(calc, stubChain{}, log),
		Wallet:     kp,
		Connection: h.conn,
		Confirmer:  confirmer,
		Notifier:   h.events,
		Logger:     log,
		Metrics:    m,
	})
	require.NoError(t, err)
	t.Cleanup(h.orc.Close)
	return h
}

func (h *harness) quoted(t *testing.T, human string, out uint64, impact float64) {
	t.Helper()
	base, err := amount.ParseBaseUnits(human, h.orc.Snapshot().Input.Decimals)
	require.NoError(t, err)

	h.agg.mu.Lock()
	h.agg.routes[base] = testRoute{out: out, impact: impact}
	h.agg.mu.Unlock()

	require.NoError(t, h.orc.SetInputAmount(human))
	h.orc.Wait()
	require.Equal(t, Quoted, h.orc.Snapshot().State)
}

func TestDefaults(t *testing.T) {
	h := newHarness(t, nil)
	s := h.orc.Snapshot()

	assert.Equal(t, token.SOL, s.Input)
	assert.Equal(t, token.USDC, s.Output)
	assert.Equal(t, 0.5, s.SlippagePct)
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Route)
	assert.Zero(t, s.PriceImpactPct)
	assert.NotEmpty(t, s.ID)
	assert.False(t, h.orc.CanSubmit())
}

func TestQuoteSolToUsdc(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1.5", 150_000_000, 0.0012)

	s := h.orc.Snapshot()
	assert.Equal(t, "150", s.OutputAmount)
	assert.InDelta(t, 0.12, s.PriceImpactPct, 1e-9)
	assert.NotNil(t, s.Route)
	assert.False(t, s.Loading)
	assert.True(t, h.orc.CanSubmit())
	assert.Equal(t, uint64(1_500_000_000), h.agg.calls[0].Amount)
	assert.Equal(t, uint16(50), h.agg.calls[0].SlippageBps)

	d := h.orc.Display()
	require.NotNil(t, d)
	assert.Equal(t, "1 SOL = 100 USDC", d.Rate)
	assert.Equal(t, "0.0015 SOL", d.Fee)
	assert.Equal(t, "0.1%", d.FeeRate)
	assert.Equal(t, "Epfm...5fb3", d.FeeRecipient)
	assert.Equal(t, "0.12%", d.PriceImpact)
	assert.Equal(t, "0.5%", d.Slippage)
	assert.Equal(t, "149.25 USDC", d.MinReceived)
	assert.Equal(t, "Jupiter Aggregator", d.Route)
	assert.False(t, d.HighImpact)
}

type labeledRoute struct {
	testRoute
	labels []string
}

func (r labeledRoute) Labels() []string { return r.labels }

func TestRouteName(t *testing.T) {
	assert.Equal(t, "Jupiter Aggregator", routeName(testRoute{}))
	assert.Equal(t, "Jupiter Aggregator", routeName(labeledRoute{}))
	assert.Equal(t, "Jupiter Aggregator (Whirlpool > Raydium CLMM)",
		routeName(labeledRoute{labels: []string{"Whirlpool", "Raydium CLMM"}}))
}

func TestStaleQuoteSuppressed(t *testing.T) {
	h := newHarness(t, nil)

	gate := make(chan struct{})
	h.agg.mu.Lock()
	h.agg.routes[1_000_000_000] = testRoute{out: 100_000_000}
	h.agg.routes[2_000_000_000] = testRoute{out: 200_000_000}
	h.agg.gates[1_000_000_000] = gate
	h.agg.mu.Unlock()

	require.NoError(t, h.orc.SetInputAmount("1"))
	require.Eventually(t, func() bool { return h.agg.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.orc.SetInputAmount("2"))
	require.Eventually(t, func() bool { return h.orc.Snapshot().State == Quoted }, time.Second, time.Millisecond)
	assert.Equal(t, "200", h.orc.Snapshot().OutputAmount)

	// the first response arrives after the second one
	close(gate)
	h.orc.Wait()

	s := h.orc.Snapshot()
	assert.Equal(t, "2", s.InputAmount)
	assert.Equal(t, "200", s.OutputAmount)
	assert.Equal(t, Quoted, s.State)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.QuotesStale))
}

func TestDebounceSkipsSupersededRequests(t *testing.T) {
	h := newHarness(t, nil)
	h.orc.opts.debounce = 50 * time.Millisecond

	h.agg.mu.Lock()
	h.agg.routes[3_000_000_000] = testRoute{out: 300_000_000}
	h.agg.mu.Unlock()

	for _, in := range []string{"1", "2", "3"} {
		require.NoError(t, h.orc.SetInputAmount(in))
	}
	h.orc.Wait()

	assert.Equal(t, 1, h.agg.callCount())
	assert.Equal(t, "300", h.orc.Snapshot().OutputAmount)
}

func TestInvalidAmount(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1", 100_000_000, 0)

	err := h.orc.SetInputAmount("-3")
	assert.ErrorIs(t, err, amount.ErrInvalidAmount)
	h.orc.Wait()

	s := h.orc.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Route)
	assert.Empty(t, s.OutputAmount)
	assert.Equal(t, 1, h.agg.callCount())
	assert.Contains(t, h.events.kinds(), EventInvalidAmount)
}

func TestEmptyAmountClearsQuote(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1", 100_000_000, 0)

	require.NoError(t, h.orc.SetInputAmount(""))
	h.orc.Wait()

	s := h.orc.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Route)
	assert.Equal(t, 1, h.agg.callCount())
}

func TestCancelledRefreshKeepsQuote(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1", 100_000_000, 0)

	h.agg.mu.Lock()
	h.agg.err = context.Canceled
	h.agg.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.orc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	s := h.orc.Snapshot()
	assert.Equal(t, Quoted, s.State)
	assert.NotNil(t, s.Route)
	assert.Equal(t, "100", s.OutputAmount)
	assert.False(t, s.Loading)
	assert.NotNil(t, h.orc.Display())
	assert.True(t, h.orc.CanSubmit())
}

func TestCancelledQuoteWithoutRouteIsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.agg.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.orc.SetInputAmount("1"))
	h.orc.Wait()
	_, err := h.orc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	s := h.orc.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Route)
	assert.Empty(t, s.OutputAmount)
	assert.Nil(t, h.orc.Display())
}

func TestQuoteUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.agg.err = errors.New("502")

	require.NoError(t, h.orc.SetInputAmount("1"))
	h.orc.Wait()

	s := h.orc.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.ErrorIs(t, s.LastError, quote.ErrQuoteUnavailable)
	assert.Contains(t, h.events.kinds(), EventQuoteFailed)
}

func TestSameTokenAutoSwitch(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.orc.SelectOutputToken("sol"))
	s := h.orc.Snapshot()
	assert.Equal(t, token.SOL, s.Output)
	assert.Equal(t, token.USDC, s.Input)

	require.NoError(t, h.orc.SelectInputToken("SOL"))
	s = h.orc.Snapshot()
	assert.Equal(t, token.SOL, s.Input)
	assert.Equal(t, token.USDC, s.Output)

	require.NoError(t, h.orc.SelectInputToken("BONK"))
	s = h.orc.Snapshot()
	assert.Equal(t, token.BONK, s.Input)
	assert.Equal(t, token.USDC, s.Output)

	assert.Equal(t, []EventKind{EventTokenSwitched, EventTokenSwitched}, h.events.kinds())

	assert.Error(t, h.orc.SelectInputToken("DOGE"))
}

func TestFlipAndSlippageToggle(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.orc.Flip())
	s := h.orc.Snapshot()
	assert.Equal(t, token.USDC, s.Input)
	assert.Equal(t, token.SOL, s.Output)

	next, err := h.orc.ToggleSlippage()
	require.NoError(t, err)
	assert.Equal(t, 1.0, next)
	next, err = h.orc.ToggleSlippage()
	require.NoError(t, err)
	assert.Equal(t, 0.5, next)

	assert.ErrorIs(t, h.orc.SetSlippage(150), quote.ErrInvalidSlippage)
}

func TestSubmitSettlesAndResets(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1.5", 150_000_000, 0.0012)
	id := h.orc.Snapshot().ID

	res, err := h.orc.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, solana.Signature{7}.String(), res.Signature)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, "1.5", res.SourceAmount)
	assert.Equal(t, "150", res.DestAmount)
	assert.Equal(t, "0.0015 SOL", res.Fee)
	assert.Equal(t, id, res.SessionID)

	s := h.orc.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Empty(t, s.InputAmount)
	assert.Empty(t, s.OutputAmount)
	assert.Nil(t, s.Route)
	assert.False(t, s.InFlight)
	assert.NotEqual(t, id, s.ID)
	assert.Equal(t, token.SOL, s.Input)

	require.Len(t, h.conn.sent, 1)
	tx, err := solana.TransactionFromBytes(h.conn.sent[0])
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
	assert.Equal(t, *h.wallet.PublicKey(), tx.Message.AccountKeys[0])

	assert.Contains(t, h.events.kinds(), EventSettled)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SwapsSettled))
}

func TestHighImpactDeclined(t *testing.T) {
	asked := 0.0
	h := newHarness(t, ConfirmerFunc(func(_ context.Context, impact float64) bool {
		asked = impact
		return false
	}))
	h.quoted(t, "1", 90_000_000, 0.072)

	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrDeclined)
	assert.InDelta(t, 7.2, asked, 1e-9)

	s := h.orc.Snapshot()
	assert.Equal(t, Quoted, s.State)
	assert.NotNil(t, s.Route)
	assert.Equal(t, "1", s.InputAmount)
	assert.False(t, s.InFlight)
	assert.Empty(t, h.conn.sent)
	assert.True(t, h.orc.Display().HighImpact)
}

func TestHighImpactAccepted(t *testing.T) {
	h := newHarness(t, ConfirmerFunc(func(context.Context, float64) bool { return true }))
	h.quoted(t, "1", 90_000_000, 0.072)

	_, err := h.orc.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.conn.sent, 1)
}

func TestLowImpactSkipsConfirmation(t *testing.T) {
	h := newHarness(t, ConfirmerFunc(func(context.Context, float64) bool {
		t.Fatal("confirmation not expected")
		return false
	}))
	h.quoted(t, "1", 96_000_000, 0.04)

	_, err := h.orc.Submit(context.Background())
	require.NoError(t, err)
}

func TestBroadcastFailurePreservesRoute(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1", 100_000_000, 0)
	h.conn.sendErr = errors.New("blockhash not found")

	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBroadcastFailed)

	s := h.orc.Snapshot()
	assert.Equal(t, Quoted, s.State)
	assert.NotNil(t, s.Route)
	assert.Equal(t, "1", s.InputAmount)
	assert.Equal(t, "100", s.OutputAmount)
	assert.False(t, s.InFlight)
	assert.True(t, h.orc.CanSubmit())

	h.events.mu.Lock()
	last := h.events.events[len(h.events.events)-1]
	h.events.mu.Unlock()
	assert.Equal(t, EventSwapFailed, last.Kind)
	assert.Equal(t, Failed, last.State)

	// retry without re-entering input
	h.conn.sendErr = nil
	_, err = h.orc.Submit(context.Background())
	require.NoError(t, err)
}

func TestConfirmationTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.quoted(t, "1", 100_000_000, 0)
	h.conn.confirmErr = chain.ErrConfirmationTimeout

	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrConfirmationFailed)
	assert.ErrorIs(t, err, chain.ErrConfirmationTimeout)
	assert.Equal(t, Quoted, h.orc.Snapshot().State)
}

func TestSigningRejected(t *testing.T) {
	h := newHarness(t, nil, wallet.WithApproval(func(context.Context, *solana.Transaction) bool { return false }))
	h.quoted(t, "1", 100_000_000, 0)

	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSigningRejected)
	assert.ErrorIs(t, err, wallet.ErrRejected)
	assert.Empty(t, h.conn.sent)
	assert.Equal(t, Quoted, h.orc.Snapshot().State)
}

func TestSubmitReentrancy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, ConfirmerFunc(func(context.Context, float64) bool {
		close(entered)
		<-release
		return false
	}))
	h.quoted(t, "1", 90_000_000, 0.10)

	done := make(chan error, 1)
	go func() {
		_, err := h.orc.Submit(context.Background())
		done <- err
	}()
	<-entered

	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, h.orc.SetInputAmount("5"), ErrSubmitInFlight)
	assert.False(t, h.orc.CanSubmit())

	close(release)
	assert.ErrorIs(t, <-done, ErrDeclined)
}

func TestSubmitNotReady(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orc.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}
