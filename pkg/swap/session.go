package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solana-swap/pkg/quote"
	"solana-swap/pkg/token"
)

var (
	// ErrSigningRejected means the wallet did not sign the transaction.
	ErrSigningRejected = errors.New("signing rejected")
	// ErrBroadcastFailed means the signed transaction could not be sent.
	ErrBroadcastFailed = errors.New("broadcast failed")
	// ErrConfirmationFailed means the transaction was sent but did not confirm.
	ErrConfirmationFailed = errors.New("confirmation failed")
	// ErrSubmitInFlight means a submission is already running.
	ErrSubmitInFlight = errors.New("swap already in flight")
	// ErrNotReady means there is no wallet or no route to submit.
	ErrNotReady = errors.New("swap not ready")
	// ErrDeclined means the user declined a high price impact trade.
	ErrDeclined = errors.New("swap declined")
)

// State is the orchestrator's lifecycle state.
type State int

const (
	Idle State = iota
	QuotePending
	Quoted
	SwapPending
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case QuotePending:
		return "quote_pending"
	case Quoted:
		return "quoted"
	case SwapPending:
		return "swap_pending"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the orchestrator's working state. Snapshot returns copies.
type Session struct {
	ID             string
	Input          token.Token
	Output         token.Token
	InputAmount    string
	OutputAmount   string
	SlippagePct    float64
	Route          quote.Route
	Quote          *quote.Result
	PriceImpactPct float64
	InFlight       bool
	Loading        bool
	State          State
	LastError      error
}

// EventKind classifies notifications.
type EventKind int

const (
	EventQuoteUpdated EventKind = iota
	EventQuoteFailed
	EventInvalidAmount
	EventTokenSwitched
	EventDeclined
	EventSubmitted
	EventSettled
	EventSwapFailed
)

func (k EventKind) String() string {
	switch k {
	case EventQuoteUpdated:
		return "quote_updated"
	case EventQuoteFailed:
		return "quote_failed"
	case EventInvalidAmount:
		return "invalid_amount"
	case EventTokenSwitched:
		return "token_switched"
	case EventDeclined:
		return "declined"
	case EventSubmitted:
		return "submitted"
	case EventSettled:
		return "settled"
	case EventSwapFailed:
		return "swap_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a user-visible notification.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
	Message   string
	Signature string
	Err       error
}

// Notifier presents events to the user.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// Confirmer asks the user whether to continue with a high price impact trade.
type Confirmer interface {
	ConfirmHighImpact(ctx context.Context, impactPct float64) bool
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, impactPct float64) bool

func (f ConfirmerFunc) ConfirmHighImpact(ctx context.Context, impactPct float64) bool {
	return f(ctx, impactPct)
}

// Quoter fetches the best route for a request.
type Quoter interface {
	GetQuote(ctx context.Context, req quote.Request) (*quote.Result, error)
}

// Builder assembles the unsigned swap transaction.
type Builder interface {
	BuildSwapTransaction(ctx context.Context, route quote.Route, trader solana.PublicKey, in, out token.Token, humanInput string) (*solana.Transaction, error)
}

// Connection broadcasts and confirms transactions.
type Connection interface {
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) (rpc.ConfirmationStatusType, error)
}
