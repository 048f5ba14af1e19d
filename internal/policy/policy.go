// Package policy applies safety rules to suggested actions before they
// reach the client. Suggestions stay advisory: every fund-moving step
// still goes through its own explicit confirmation endpoint.
package policy

import "github.com/defi-copilot/copilotd/internal/model"

// fundMoving marks action types that would move value if acted on.
var fundMoving = map[string]bool{
	"swap":    true,
	"approve": true,
	"send":    true,
}

// knownActions is the closed set of action types clients understand.
// Anything outside it is dropped rather than forwarded blind.
var knownActions = map[string]bool{
	"swap":           true,
	"send":           true,
	"approve":        true,
	"check_gas":      true,
	"check_balance":  true,
	"connect_wallet": true,
	"simulate":       true,
	"track_tx":       true,
}

type Policy struct {
	maxActions int
}

func New() *Policy {
	return &Policy{maxActions: 4}
}

// Filter enforces the action rules: unknown action types are dropped,
// connect prompts vanish once the wallet is connected, fund-moving
// suggestions are forced advisory, fund-moving suggestions without a
// connected wallet are led by a connect prompt, duplicates collapse,
// and the list is capped.
func (p *Policy) Filter(actions []model.Action, wallet model.WalletState) []model.Action {
	if len(actions) == 0 {
		return nil
	}

	out := make([]model.Action, 0, len(actions))
	seen := make(map[string]bool, len(actions))
	needsWallet := false

	for _, a := range actions {
		if !knownActions[a.Type] || seen[a.Type] {
			continue
		}
		// A connect prompt for an already-connected wallet is noise.
		if a.Type == "connect_wallet" && wallet.IsConnected {
			continue
		}
		seen[a.Type] = true
		if fundMoving[a.Type] {
			a.Advisory = true
			if !wallet.IsConnected {
				needsWallet = true
			}
		}
		out = append(out, a)
	}

	if needsWallet && !seen["connect_wallet"] {
		out = append([]model.Action{{Type: "connect_wallet", Label: "Connect wallet", Advisory: true}}, out...)
	}

	if len(out) > p.maxActions {
		out = out[:p.maxActions]
	}
	return out
}
