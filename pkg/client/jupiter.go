package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-swap/pkg/logger"
	"solana-swap/pkg/quote"
)

const (
	DefaultBaseURL = "https://quote-api.jup.ag/v6"
	DefaultTimeout = 15 * time.Second
)

// Jupiter is a client for the Jupiter aggregator HTTP API.
type Jupiter struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures Jupiter.
type Option func(*Jupiter)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(j *Jupiter) {
		j.http = c
	}
}

// WithRateLimit caps outgoing requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(j *Jupiter) {
		if rps <= 0 {
			j.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		j.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Jupiter) {
		j.logger = logger.OrNop(l)
	}
}

// NewJupiter creates a new Jupiter API client
func NewJupiter(baseURL string, opts ...Option) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	j := &Jupiter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// QuoteResponse is the aggregator's best route. Raw holds the original
// payload, which must be echoed back unchanged when requesting instructions.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`

	Raw json.RawMessage `json:"-"`

	outAmount   uint64
	priceImpact float64
}

// RoutePlanStep is one hop of a route.
type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo describes the venue used by a hop.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// Labels returns the venue labels along the route.
func (q *QuoteResponse) Labels() []string {
	labels := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}
	return labels
}

// Instruction is an instruction in the aggregator's JSON encoding.
type Instruction struct {
	ProgramID string           `json:"programId"`
	Accounts  []InstructionKey `json:"accounts"`
	Data      string           `json:"data"`
}

// InstructionKey is an account reference of an Instruction.
type InstructionKey struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// SwapInstructionsResponse is the payload of POST /swap-instructions.
type SwapInstructionsResponse struct {
	TokenLedgerInstruction      *Instruction  `json:"tokenLedgerInstruction"`
	ComputeBudgetInstructions   []Instruction `json:"computeBudgetInstructions"`
	SetupInstructions           []Instruction `json:"setupInstructions"`
	SwapInstruction             *Instruction  `json:"swapInstruction"`
	CleanupInstruction          *Instruction  `json:"cleanupInstruction"`
	OtherInstructions           []Instruction `json:"otherInstructions"`
	AddressLookupTableAddresses []string      `json:"addressLookupTableAddresses"`
}

type swapInstructionsRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}

// APIError is a non-2xx answer from the aggregator.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Quote requests the best route for params.
func (j *Jupiter) Quote(ctx context.Context, params quote.RouteParams) (*QuoteResponse, error) {
	query := url.Values{}
	query.Set("inputMint", params.InputMint.String())
	query.Set("outputMint", params.OutputMint.String())
	query.Set("amount", strconv.FormatUint(params.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(int(params.SlippageBps)))
	query.Set("swapMode", "ExactIn")

	body, err := j.do(ctx, http.MethodGet, "/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var resp QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	resp.Raw = body

	if resp.outAmount, err = strconv.ParseUint(resp.OutAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid outAmount '%s': %w", resp.OutAmount, err)
	}
	if resp.PriceImpactPct != "" {
		if resp.priceImpact, err = strconv.ParseFloat(resp.PriceImpactPct, 64); err != nil {
			return nil, fmt.Errorf("invalid priceImpactPct '%s': %w", resp.PriceImpactPct, err)
		}
	}

	return &resp, nil
}

// SwapInstructions requests the instructions that execute q for user.
func (j *Jupiter) SwapInstructions(ctx context.Context, q *QuoteResponse, user solana.PublicKey) (*SwapInstructionsResponse, error) {
	if len(q.Raw) == 0 {
		return nil, fmt.Errorf("quote has no raw payload")
	}

	payload, err := json.Marshal(swapInstructionsRequest{
		QuoteResponse:           q.Raw,
		UserPublicKey:           user.String(),
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	body, err := j.do(ctx, http.MethodPost, "/swap-instructions", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap instructions: %w", err)
	}

	var resp SwapInstructionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode swap instructions: %w", err)
	}
	if resp.SwapInstruction == nil {
		return nil, fmt.Errorf("empty swap instruction")
	}

	return &resp, nil
}

// Routes implements quote.Aggregator. The v6 API returns only its best route.
func (j *Jupiter) Routes(ctx context.Context, params quote.RouteParams) ([]quote.Route, error) {
	q, err := j.Quote(ctx, params)
	if err != nil {
		return nil, err
	}
	return []quote.Route{&Route{client: j, quote: q}}, nil
}

func (j *Jupiter) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := j.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	j.logger.Debug("jupiter request",
		zap.String("method", method),
		zap.String("path", strings.SplitN(path, "?", 2)[0]),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	// Check for successful status codes (200-299)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// decodeAPIError extracts the aggregator's error message from a response body.
func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if code, ok := errorResp["errorCode"].(string); ok {
			apiErr.Code = code
		}
		if message, ok := errorResp["error"].(string); ok {
			apiErr.Message = message
			return apiErr
		}
		if message, ok := errorResp["message"].(string); ok {
			apiErr.Message = message
			return apiErr
		}
	}

	// If we can't parse it, show the raw body
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// decodeInstruction converts the JSON encoding into a solana-go instruction.
func decodeInstruction(in Instruction) (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(in.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id '%s': %w", in.ProgramID, err)
	}

	accounts := make(solana.AccountMetaSlice, 0, len(in.Accounts))
	for _, acc := range in.Accounts {
		key, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid account '%s': %w", acc.Pubkey, err)
		}
		accounts = append(accounts, solana.NewAccountMeta(key, acc.IsWritable, acc.IsSigner))
	}

	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}

	return solana.NewInstruction(programID, accounts, data), nil
}

func decodeInstructions(list []Instruction) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(list))
	for _, in := range list {
		ix, err := decodeInstruction(in)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}
