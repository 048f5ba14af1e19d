package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/policy"
)

// fallbackReply is served verbatim when the language model fails; the
// exchange still completes normally from the client's point of view.
const fallbackReply = "Sorry, I encountered an error processing your request. Please try again."

const streamWordDelay = 15 * time.Millisecond

// Completer produces one assistant reply for a composed prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []model.Message, userText string) (string, error)
}

// Orchestrator owns the conversation: an append-only history and at most
// one in-flight stream. Starting a new exchange cancels the previous one.
type Orchestrator struct {
	llm   Completer
	ctxSt *aictx.Store
	pol   *policy.Policy
	log   *zap.Logger
	now   func() time.Time
	delay time.Duration

	mu       sync.Mutex
	history  []model.Message
	cancel   context.CancelFunc
	flight   uint64
	lastMode string
}

func NewOrchestrator(llm Completer, ctxSt *aictx.Store, pol *policy.Policy, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if pol == nil {
		pol = policy.New()
	}
	return &Orchestrator{
		llm:      llm,
		ctxSt:    ctxSt,
		pol:      pol,
		log:      log,
		now:      time.Now,
		delay:    streamWordDelay,
		lastMode: ModeChat,
	}
}

// Send starts a new exchange and returns its ordered event stream. The
// channel closes when the exchange finishes or is superseded; a canceled
// stream ends with an error event and leaves no assistant message behind.
func (o *Orchestrator) Send(ctx context.Context, text string) (<-chan model.StreamEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, cperr.New(cperr.CodeInvalidInput, "message text is required")
	}

	o.mu.Lock()
	if o.cancel != nil {
		// Single in-flight exchange: the newer request wins.
		o.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.flight++
	flight := o.flight

	// The prompt gets the history up to, not including, this turn; the
	// provider appends the new user text itself.
	priorHistory := o.historyLocked()
	userMsg := model.Message{
		ID:        ulid.Make().String(),
		Role:      model.RoleUser,
		Content:   text,
		CreatedAt: o.now().UTC(),
	}
	o.history = append(o.history, userMsg)
	o.mu.Unlock()

	events := make(chan model.StreamEvent, 16)
	go o.run(runCtx, cancel, flight, text, priorHistory, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, flight uint64, text string, history []model.Message, events chan<- model.StreamEvent) {
	defer close(events)
	defer o.release(cancel, flight)

	reply := o.complete(ctx, history, text)

	for _, word := range strings.Fields(reply) {
		select {
		case <-ctx.Done():
			events <- model.StreamEvent{Type: model.StreamEventError, Content: "stream interrupted"}
			return
		case events <- model.StreamEvent{Type: model.StreamEventContent, Content: word + " "}:
		}
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
	}

	select {
	case <-ctx.Done():
		events <- model.StreamEvent{Type: model.StreamEventError, Content: "stream interrupted"}
		return
	default:
	}

	// Post-process the assembled exchange, not just the user message: the
	// reply is what decides which affordances make sense next. The wallet
	// snapshot is taken now so a connect that landed mid-stream counts.
	analysis := Analyze(reply + "\n" + text)
	wallet := o.ctxSt.Snapshot().Wallet
	actions := o.pol.Filter(analysis.Actions, wallet)

	if mode := o.swapMode(analysis.Mode); mode != "" {
		events <- model.StreamEvent{Type: model.StreamEventModeChange, Content: mode}
	}

	metadata := &model.MessageMetadata{
		Confidence: analysis.Confidence,
		Sentiment:  analysis.Sentiment,
		RiskLevel:  analysis.RiskLevel,
	}
	assistantMsg := model.Message{
		ID:        ulid.Make().String(),
		Role:      model.RoleAssistant,
		Content:   reply,
		Actions:   actions,
		Metadata:  metadata,
		CreatedAt: o.now().UTC(),
	}
	// The ctx check above can race a supersession landing right after it;
	// the flight comparison under the lock is what actually decides whether
	// this exchange still owns the conversation.
	o.mu.Lock()
	if o.flight != flight {
		o.mu.Unlock()
		events <- model.StreamEvent{Type: model.StreamEventError, Content: "stream interrupted"}
		return
	}
	o.history = append(o.history, assistantMsg)
	o.mu.Unlock()

	o.ctxSt.Update("chat", aictx.Partial{
		MarketSentiment: &analysis.Sentiment,
		RiskLevel:       &analysis.RiskLevel,
	})

	events <- model.StreamEvent{
		Type:       model.StreamEventContent,
		IsComplete: true,
		Confidence: analysis.Confidence,
		Actions:    actions,
		Metadata:   metadata,
	}
}

func (o *Orchestrator) complete(ctx context.Context, history []model.Message, text string) string {
	prompt, err := o.systemPrompt()
	if err != nil {
		o.log.Warn("context serialization failed", zap.Error(err))
	}
	reply, err := o.llm.Complete(ctx, prompt, history, text)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn("completion failed, serving fallback reply", zap.Error(err))
		}
		return fallbackReply
	}
	return reply
}

func (o *Orchestrator) systemPrompt() (string, error) {
	ctxJSON, err := o.ctxSt.PromptJSON()
	if err != nil {
		return "You are a helpful DeFi assistant.", err
	}
	return "You are a helpful DeFi assistant embedded in a wallet dashboard. " +
		"Be concise and never ask for private keys or seed phrases. " +
		"Current session state:\n" + ctxJSON, nil
}

// swapMode returns the new mode if it changed, empty otherwise.
func (o *Orchestrator) swapMode(mode string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if mode == o.lastMode {
		return ""
	}
	o.lastMode = mode
	return mode
}

// release clears the in-flight slot if this exchange still owns it.
func (o *Orchestrator) release(cancel context.CancelFunc, flight uint64) {
	cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flight == flight {
		o.cancel = nil
	}
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.historyLocked()
}

func (o *Orchestrator) historyLocked() []model.Message {
	out := make([]model.Message, len(o.history))
	copy(out, o.history)
	return out
}
