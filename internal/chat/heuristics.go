// Package chat orchestrates assistant conversations: one in-flight stream
// per session, append-only history, and keyword heuristics that decorate
// replies with suggested actions. The heuristics are advisory; nothing in
// this package moves funds.
package chat

import (
	"strings"

	"github.com/defi-copilot/copilotd/internal/model"
)

// Analysis is the heuristic read of one user message. Confidence is a
// rough keyword-coverage score, not a model probability.
type Analysis struct {
	Actions    []model.Action
	Sentiment  string
	RiskLevel  string
	Confidence float64
	Mode       string
}

const (
	ModeChat   = "chat"
	ModeAction = "action"
)

// keywordRule matches when any anyOf word occurs, or when every allOf
// word co-occurs. allOf takes precedence when set.
type keywordRule struct {
	anyOf  []string
	allOf  []string
	action model.Action
}

func (r keywordRule) matches(lower string) bool {
	if len(r.allOf) > 0 {
		for _, w := range r.allOf {
			if !strings.Contains(lower, w) {
				return false
			}
		}
		return true
	}
	return containsAny(lower, r.anyOf)
}

// Action types line up with the operations the API exposes, so a client
// can map a suggestion straight to an endpoint. The connect rule needs
// both words: "wallet" alone shows up in far too many replies to signal
// a connection ask.
var keywordRules = []keywordRule{
	{anyOf: []string{"swap", "exchange", "trade", "convert"}, action: model.Action{Type: "swap", Label: "Open swap", Advisory: true}},
	{anyOf: []string{"send", "transfer", "pay"}, action: model.Action{Type: "send", Label: "Send tokens", Advisory: true}},
	{anyOf: []string{"gas", "fee", "gwei"}, action: model.Action{Type: "check_gas", Label: "Check gas", Advisory: true}},
	{allOf: []string{"connect", "wallet"}, action: model.Action{Type: "connect_wallet", Label: "Connect wallet", Advisory: true}},
	{anyOf: []string{"balance", "holdings", "portfolio"}, action: model.Action{Type: "check_balance", Label: "View balance", Advisory: true}},
	{anyOf: []string{"simulate", "dry run", "preview"}, action: model.Action{Type: "simulate", Label: "Simulate transaction", Advisory: true}},
	{anyOf: []string{"approve", "allowance"}, action: model.Action{Type: "approve", Label: "Review approval", Advisory: true}},
	{anyOf: []string{"transaction", "tx", "pending", "confirm"}, action: model.Action{Type: "track_tx", Label: "Track transaction", Advisory: true}},
}

var bullishWords = []string{"buy", "bullish", "pump", "moon", "long", "accumulate"}
var bearishWords = []string{"sell", "bearish", "dump", "crash", "short", "exit"}

var highRiskWords = []string{"leverage", "all in", "degen", "yolo", "max"}
var lowRiskWords = []string{"safe", "stable", "conservative", "small", "test"}

var actionModeWords = []string{"execute", "do it", "go ahead", "now", "send it"}

// Analyze runs the keyword heuristics over an exchange's text, the
// assembled reply plus the user message that prompted it. Pure and
// deterministic: same text, same analysis.
func Analyze(text string) Analysis {
	lower := strings.ToLower(text)

	analysis := Analysis{
		Sentiment: "neutral",
		RiskLevel: "medium",
		Mode:      ModeChat,
	}

	matched := 0
	for _, rule := range keywordRules {
		if rule.matches(lower) {
			analysis.Actions = append(analysis.Actions, rule.action)
			matched++
		}
	}

	switch {
	case containsAny(lower, bullishWords):
		analysis.Sentiment = "bullish"
	case containsAny(lower, bearishWords):
		analysis.Sentiment = "bearish"
	}

	switch {
	case containsAny(lower, highRiskWords):
		analysis.RiskLevel = "high"
	case containsAny(lower, lowRiskWords):
		analysis.RiskLevel = "low"
	}

	if matched > 0 && containsAny(lower, actionModeWords) {
		analysis.Mode = ModeAction
	}

	// One matched topic reads as a clear ask; pile-ups dilute certainty.
	switch matched {
	case 0:
		analysis.Confidence = 0.3
	case 1:
		analysis.Confidence = 0.8
	case 2:
		analysis.Confidence = 0.65
	default:
		analysis.Confidence = 0.5
	}
	return analysis
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
