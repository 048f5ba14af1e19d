package model

import "time"

// WalletState is the session snapshot owned by the wallet adapter. All other
// components treat it as read-only.
type WalletState struct {
	IsConnected   bool   `json:"isConnected"`
	Address       string `json:"address,omitempty"`
	Balance       string `json:"balance,omitempty"`
	ChainID       int64  `json:"chainId,omitempty"`
	ChainName     string `json:"chainName,omitempty"`
	ConnectorName string `json:"connectorName,omitempty"`
}

// RouteHop describes one pool hop of a swap route.
type RouteHop struct {
	Pool     string `json:"pool"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	FeeBps   int64  `json:"feeBps"`
}

// Quote is immutable once returned; a newer request supersedes it rather
// than mutating it.
type Quote struct {
	FromToken    string     `json:"fromToken"`
	ToToken      string     `json:"toToken"`
	FromAmount   string     `json:"fromAmount"`
	ToAmount     string     `json:"toAmount"`
	ToAmountMin  string     `json:"toAmountMin"`
	Rate         string     `json:"rate"`
	PriceImpact  float64    `json:"priceImpact"`
	GasEstimate  string     `json:"gasEstimate"`
	Route        []RouteHop `json:"route"`
	IsFallback   bool       `json:"isFallback"`
	FetchedAt    time.Time  `json:"fetchedAt"`
	FallbackNote string     `json:"_note,omitempty"`
}

// TxStatus is the transaction record lifecycle. Transitions are strictly
// forward; Confirmed and Failed are terminal.
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxConfirming TxStatus = "confirming"
	TxConfirmed  TxStatus = "confirmed"
	TxFailed     TxStatus = "failed"
)

// rank orders statuses for the monotonicity check. Failed ranks above the
// non-terminal states so it stays reachable from pending and confirming.
func (s TxStatus) rank() int {
	switch s {
	case TxPending:
		return 0
	case TxConfirming:
		return 1
	case TxConfirmed, TxFailed:
		return 2
	default:
		return -1
	}
}

func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// CanTransition reports whether moving from s to next respects the
// lifecycle: no backward moves, nothing leaves a terminal state.
func (s TxStatus) CanTransition(next TxStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == TxFailed {
		return true
	}
	return next.rank() == s.rank()+1
}

// TransactionSummary is the projection of a transaction record mirrored
// into the AI context.
type TransactionSummary struct {
	Hash        string    `json:"hash,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Status      TxStatus  `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
	Error       string    `json:"error,omitempty"`
}

// GasReport mirrors the gas-tracker endpoint payload. Note and Cached are
// fallback/cache annotations, never hard errors.
type GasReport struct {
	Slow                 string        `json:"slow"`
	Standard             string        `json:"standard"`
	Fast                 string        `json:"fast"`
	Instant              string        `json:"instant"`
	BaseFee              string        `json:"baseFee"`
	Trend                string        `json:"trend"`
	LastUpdate           time.Time     `json:"lastUpdate"`
	SuggestedMaxFee      FeeSuggestion `json:"suggestedMaxFee"`
	SuggestedPriorityFee FeeSuggestion `json:"suggestedPriorityFee"`
	Note                 string        `json:"_note,omitempty"`
	Cached               bool          `json:"_cached,omitempty"`
}

type FeeSuggestion struct {
	Slow     string `json:"slow"`
	Standard string `json:"standard"`
	Fast     string `json:"fast"`
}

// SimulationResult reports a dry run of a transaction. A simulated revert
// is a successful simulation with Success=false, not an error.
type SimulationResult struct {
	Success       bool            `json:"success"`
	GasEstimate   string          `json:"gasEstimate"`
	Changes       []BalanceChange `json:"changes"`
	Warnings      []string        `json:"warnings"`
	EstimatedCost EstimatedCost   `json:"estimatedCost"`
}

type BalanceChange struct {
	Address   string `json:"address"`
	Asset     string `json:"asset"`
	Delta     string `json:"delta"`
	Direction string `json:"direction"`
}

type EstimatedCost struct {
	GasLimit   string `json:"gasLimit"`
	MaxFeeWei  string `json:"maxFeeWei"`
	TotalEther string `json:"totalEther"`
}

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Action is a UI affordance suggested from assistant text. Advisory only:
// it never moves funds by itself.
type Action struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Advisory bool   `json:"advisory"`
}

type MessageMetadata struct {
	Confidence float64 `json:"confidence"`
	Sentiment  string  `json:"sentiment,omitempty"`
	RiskLevel  string  `json:"riskLevel,omitempty"`
}

// Message is one entry of the append-only conversation history.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Actions   []Action         `json:"actions,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// StreamEvent is one newline-delimited JSON event of a chat response.
type StreamEvent struct {
	Type       string           `json:"type"`
	Content    string           `json:"content,omitempty"`
	IsComplete bool             `json:"isComplete,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Actions    []Action         `json:"actions,omitempty"`
	Metadata   *MessageMetadata `json:"metadata,omitempty"`
}

const (
	StreamEventContent    = "content"
	StreamEventModeChange = "mode_change"
	StreamEventError      = "error"
)
