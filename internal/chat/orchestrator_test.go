package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defi-copilot/copilotd/internal/aictx"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/policy"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	blockOn string
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, _ string, _ []model.Message, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.blockOn != "" && text == f.blockOn {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestOrchestrator(c Completer) *Orchestrator {
	o := NewOrchestrator(c, aictx.NewStore(), policy.New(), nil)
	o.delay = 0
	return o
}

func collect(t *testing.T, events <-chan model.StreamEvent) []model.StreamEvent {
	t.Helper()
	var out []model.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestSendStreamsWordsThenCompletes(t *testing.T) {
	o := newTestOrchestrator(&fakeCompleter{reply: "gas looks fine today"})

	events, err := o.Send(context.Background(), "how is gas?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := collect(t, events)

	var text strings.Builder
	var final *model.StreamEvent
	for i, ev := range got {
		if ev.Type != model.StreamEventContent {
			t.Fatalf("event %d type = %s, want content", i, ev.Type)
		}
		if ev.IsComplete {
			final = &got[i]
		} else {
			text.WriteString(ev.Content)
		}
	}
	if final == nil {
		t.Fatal("no completion event")
	}
	if strings.TrimSpace(text.String()) != "gas looks fine today" {
		t.Fatalf("streamed text = %q", text.String())
	}
	if final.Metadata == nil || final.Metadata.Confidence == 0 {
		t.Fatal("completion event missing metadata")
	}
}

func TestSendAppendsExactlyOneAssistantMessage(t *testing.T) {
	o := newTestOrchestrator(&fakeCompleter{reply: "hello"})
	events, err := o.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	collect(t, events)

	history := o.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != model.RoleUser || history[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestCompleterFailureServesFallback(t *testing.T) {
	o := newTestOrchestrator(&fakeCompleter{err: context.DeadlineExceeded})
	events, err := o.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := collect(t, events)

	var text strings.Builder
	for _, ev := range got {
		if !ev.IsComplete {
			text.WriteString(ev.Content)
		}
	}
	if strings.TrimSpace(text.String()) != fallbackReply {
		t.Fatalf("fallback text = %q", text.String())
	}

	history := o.History()
	if len(history) != 2 || history[1].Content != fallbackReply {
		t.Fatal("fallback reply must still be recorded as the assistant message")
	}
}

func TestNewSendSupersedesInFlightStream(t *testing.T) {
	completer := &fakeCompleter{reply: "second answer", blockOn: "first question"}
	o := newTestOrchestrator(completer)

	first, err := o.Send(context.Background(), "first question")
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	second, err := o.Send(context.Background(), "second question")
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}

	firstEvents := collect(t, first)
	if len(firstEvents) == 0 || firstEvents[len(firstEvents)-1].Type != model.StreamEventError {
		t.Fatalf("superseded stream should end with an error event, got %+v", firstEvents)
	}

	secondEvents := collect(t, second)
	last := secondEvents[len(secondEvents)-1]
	if !last.IsComplete {
		t.Fatal("winning stream must complete")
	}

	assistants := 0
	for _, m := range o.History() {
		if m.Role == model.RoleAssistant {
			assistants++
		}
	}
	if assistants != 1 {
		t.Fatalf("assistant messages = %d, want 1 (only the winning exchange)", assistants)
	}
}

func finalEvent(t *testing.T, events []model.StreamEvent) model.StreamEvent {
	t.Helper()
	for _, ev := range events {
		if ev.IsComplete {
			return ev
		}
	}
	t.Fatal("no completion event")
	return model.StreamEvent{}
}

func hasActionType(actions []model.Action, typ string) bool {
	for _, a := range actions {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func TestReplyDrivesSuggestedActions(t *testing.T) {
	// The user asks something neutral; only the reply mentions connecting
	// a wallet. The suggestion must come from the reply text.
	o := newTestOrchestrator(&fakeCompleter{reply: "Please connect your wallet first."})

	events, err := o.Send(context.Background(), "can you help me?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	final := finalEvent(t, collect(t, events))
	if !hasActionType(final.Actions, "connect_wallet") {
		t.Fatalf("actions = %+v, want connect_wallet from the reply", final.Actions)
	}
}

func TestNoConnectPromptWhenWalletConnected(t *testing.T) {
	store := aictx.NewStore()
	store.Update("wallet", aictx.Partial{Wallet: &model.WalletState{
		IsConnected: true,
		Address:     "0x1111111111111111111111111111111111111111",
	}})
	o := NewOrchestrator(&fakeCompleter{reply: "Please connect your wallet first."}, store, policy.New(), nil)
	o.delay = 0

	events, err := o.Send(context.Background(), "can you help me?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	final := finalEvent(t, collect(t, events))
	if hasActionType(final.Actions, "connect_wallet") {
		t.Fatalf("actions = %+v, connect prompt must be dropped while connected", final.Actions)
	}
}

func TestLateSupersessionAppendsNoMessage(t *testing.T) {
	// Holds the first exchange right between its cancellation check and
	// the history append, then supersedes it. The flight guard has to
	// catch what the earlier context check missed.
	o := newTestOrchestrator(&fakeCompleter{reply: "stale answer"})

	gate := make(chan struct{})
	var nowCalls int32
	o.now = func() time.Time {
		// Call 1 stamps the first user message, call 2 the first
		// assistant message; calls 3+ belong to the second exchange.
		if atomic.AddInt32(&nowCalls, 1) == 2 {
			<-gate
		}
		return time.Now()
	}

	first, err := o.Send(context.Background(), "first question")
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&nowCalls) < 2 {
		select {
		case <-deadline:
			t.Fatal("first exchange never reached the append window")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second, err := o.Send(context.Background(), "second question")
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	close(gate)

	firstEvents := collect(t, first)
	if len(firstEvents) == 0 || firstEvents[len(firstEvents)-1].Type != model.StreamEventError {
		t.Fatalf("superseded stream should end with an error event, got %+v", firstEvents)
	}
	finalEvent(t, collect(t, second))

	assistants := 0
	for _, m := range o.History() {
		if m.Role == model.RoleAssistant {
			assistants++
		}
	}
	if assistants != 1 {
		t.Fatalf("assistant messages = %d, want 1", assistants)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	o := newTestOrchestrator(&fakeCompleter{reply: "x"})
	if _, err := o.Send(context.Background(), "   "); err == nil {
		t.Fatal("empty message must be rejected")
	}
}
