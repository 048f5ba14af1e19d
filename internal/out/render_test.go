package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/defi-copilot/copilotd/internal/model"
)

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	env := model.OK(map[string]string{"standard": "25"}, "mock data")
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if !decoded.Success {
		t.Fatal("success lost in rendering")
	}
	if len(decoded.Warnings) != 1 || decoded.Warnings[0] != "mock data" {
		t.Fatalf("warnings = %v", decoded.Warnings)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatal("json output must be indented")
	}
}

func TestRenderPlainSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	env := model.OK(map[string]any{"zeta": 1, "alpha": "x"})
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	line := buf.String()
	if strings.Index(line, "alpha=") > strings.Index(line, "zeta=") {
		t.Fatalf("plain keys must be sorted: %s", line)
	}
	if !strings.Contains(line, "success=true") {
		t.Fatalf("plain output missing success: %s", line)
	}
}

func TestRenderPlainError(t *testing.T) {
	var buf bytes.Buffer
	env := model.Fail(3, "invalid amount")
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "success=false") || !strings.Contains(line, "error=") {
		t.Fatalf("plain error output: %s", line)
	}
}
