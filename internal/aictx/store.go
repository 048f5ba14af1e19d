// Package aictx holds the shared context object that is serialized into
// every outbound LLM prompt. The remote model has no blockchain access of
// its own; this mirror of wallet and transaction state is the only "live"
// information its replies can reference.
package aictx

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/defi-copilot/copilotd/internal/model"
)

// Context is the prompt-visible state. Everything in here is sent verbatim
// to the LLM, so callers must never place secrets (keys, seed phrases) in
// it; the types below intentionally have no field that could carry one.
type Context struct {
	Wallet           model.WalletState         `json:"wallet"`
	Web3Capabilities []string                  `json:"web3Capabilities"`
	LastTransaction  *model.TransactionSummary `json:"lastTransaction,omitempty"`
	LastQuote        *model.Quote              `json:"lastQuote,omitempty"`
	MarketSentiment  string                    `json:"marketSentiment,omitempty"`
	RiskLevel        string                    `json:"riskLevel,omitempty"`
}

// Partial is a shallow merge request. Nil fields leave the current value
// untouched; set fields win last-write-wins.
type Partial struct {
	Wallet           *model.WalletState
	Web3Capabilities []string
	LastTransaction  *model.TransactionSummary
	LastQuote        *model.Quote
	MarketSentiment  *string
	RiskLevel        *string
}

// ChangeEntry records one merge for debugging. The log is append-only and
// capped; it is never fed back into prompts.
type ChangeEntry struct {
	Source string    `json:"source"`
	Fields []string  `json:"fields"`
	At     time.Time `json:"at"`
}

const changeLogCap = 256

// Store is an explicit, injectable context holder; tests instantiate an
// isolated store per case instead of sharing ambient module state.
type Store struct {
	mu  sync.Mutex
	ctx Context
	log []ChangeEntry
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		ctx: Context{
			Web3Capabilities: []string{"balance", "gas", "quote", "swap", "send"},
		},
		now: time.Now,
	}
}

// Update applies a last-write-wins shallow merge. The merge happens under
// the lock against the current state, never against a caller's stale copy.
func (s *Store) Update(source string, p Partial) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fields []string
	if p.Wallet != nil {
		s.ctx.Wallet = *p.Wallet
		fields = append(fields, "wallet")
	}
	if p.Web3Capabilities != nil {
		caps := make([]string, len(p.Web3Capabilities))
		copy(caps, p.Web3Capabilities)
		s.ctx.Web3Capabilities = caps
		fields = append(fields, "web3Capabilities")
	}
	if p.LastTransaction != nil {
		tx := *p.LastTransaction
		s.ctx.LastTransaction = &tx
		fields = append(fields, "lastTransaction")
	}
	if p.LastQuote != nil {
		q := *p.LastQuote
		s.ctx.LastQuote = &q
		fields = append(fields, "lastQuote")
	}
	if p.MarketSentiment != nil {
		s.ctx.MarketSentiment = *p.MarketSentiment
		fields = append(fields, "marketSentiment")
	}
	if p.RiskLevel != nil {
		s.ctx.RiskLevel = *p.RiskLevel
		fields = append(fields, "riskLevel")
	}
	if len(fields) == 0 {
		return
	}
	sort.Strings(fields)
	s.log = append(s.log, ChangeEntry{Source: source, Fields: fields, At: s.now().UTC()})
	if len(s.log) > changeLogCap {
		s.log = s.log[len(s.log)-changeLogCap:]
	}
}

// Snapshot returns a deep copy safe to read without holding the lock.
func (s *Store) Snapshot() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ctx
	out.Web3Capabilities = append([]string(nil), s.ctx.Web3Capabilities...)
	if s.ctx.LastTransaction != nil {
		tx := *s.ctx.LastTransaction
		out.LastTransaction = &tx
	}
	if s.ctx.LastQuote != nil {
		q := *s.ctx.LastQuote
		out.LastQuote = &q
	}
	return out
}

// PromptJSON serializes the context for embedding into a prompt.
func (s *Store) PromptJSON() (string, error) {
	snap := s.Snapshot()
	buf, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ChangeLog returns a copy of the debug log.
func (s *Store) ChangeLog() []ChangeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChangeEntry(nil), s.log...)
}
