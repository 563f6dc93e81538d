package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount string `json:"source_amount"`
	SourceToken  string `json:"source_token"`
	DestAmount   string `json:"dest_amount"`
	DestToken    string `json:"dest_token"`
	Rate         string `json:"rate"`
	Fee          string `json:"fee"`
	FeeRate      string `json:"fee_rate"`
	FeeRecipient string `json:"fee_recipient"`
	PriceImpact  string `json:"price_impact"`
	HighImpact   bool   `json:"high_impact"`
	Slippage     string `json:"slippage"`
	MinReceived  string `json:"min_received,omitempty"`
	Route        string `json:"route"`
}

// SwapResult describes a settled swap.
type SwapResult struct {
	SessionID    string `json:"session_id"`
	Signature    string `json:"signature"`
	Status       string `json:"status"`
	SourceAmount string `json:"source_amount"`
	SourceToken  string `json:"source_token"`
	DestAmount   string `json:"dest_amount"`
	DestToken    string `json:"dest_token"`
	Fee          string `json:"fee"`
	Timestamp    string `json:"timestamp"`
}

// SwapStatus represents the on-chain status of a submitted swap
type SwapStatus struct {
	Signature     string  `json:"signature"`
	Status        string  `json:"status"`
	Message       string  `json:"message,omitempty"`
	Slot          uint64  `json:"slot,omitempty"`
	Confirmations *uint64 `json:"confirmations,omitempty"`
	// Target is the commitment swaps wait for; Reached reports whether the
	// transaction got there.
	Target  string `json:"target_commitment"`
	Reached bool   `json:"reached"`
}

// Balance is a wallet balance of one token.
type Balance struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}
