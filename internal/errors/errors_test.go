package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfTypedError(t *testing.T) {
	err := New(CodeRateLimited, "slow down")
	if CodeOf(err) != CodeRateLimited {
		t.Fatalf("CodeOf = %d", CodeOf(err))
	}
}

func TestCodeOfWrappedChain(t *testing.T) {
	inner := New(CodeAuth, "bad key")
	wrapped := fmt.Errorf("provider call: %w", inner)
	if CodeOf(wrapped) != CodeAuth {
		t.Fatalf("CodeOf through %%w = %d, want auth", CodeOf(wrapped))
	}
}

func TestCodeOfPlainErrorIsInternal(t *testing.T) {
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatal("untyped errors must map to internal")
	}
	if CodeOf(nil) != CodeSuccess {
		t.Fatal("nil error must map to success")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeUpstream, "fetch gas report", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	if err.Error() != "fetch gas report: connection refused" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestExitCodeMatchesCode(t *testing.T) {
	if ExitCode(New(CodeUsage, "bad flag")) != 2 {
		t.Fatal("usage errors must exit 2")
	}
	if ExitCode(nil) != 0 {
		t.Fatal("nil error must exit 0")
	}
}
