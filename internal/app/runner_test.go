package app

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/version"
)

func runCommand(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	code, stdout, _ := runCommand(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.TrimSpace(stdout) != version.Version {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestVersionLongIncludesMetadata(t *testing.T) {
	code, stdout, _ := runCommand(t, "version", "--long")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, version.Version) || !strings.Contains(stdout, "commit") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestTokensCommandListsKnownTokens(t *testing.T) {
	code, stdout, _ := runCommand(t, "tokens", "--no-cache")
	if code != 0 {
		t.Fatalf("exit code = %d, stdout = %s", code, stdout)
	}

	var env model.Envelope
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("output is not a JSON envelope: %v\n%s", err, stdout)
	}
	if !env.Success {
		t.Fatalf("envelope = %+v", env)
	}
	if !strings.Contains(stdout, "WETH") || !strings.Contains(stdout, "USDC") {
		t.Fatalf("token list missing expected symbols:\n%s", stdout)
	}
}

func TestGasCommandWorksWithoutKey(t *testing.T) {
	code, stdout, _ := runCommand(t, "gas", "--no-cache")
	if code != 0 {
		t.Fatalf("exit code = %d, stdout = %s", code, stdout)
	}
	var env model.Envelope
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("output is not a JSON envelope: %v\n%s", err, stdout)
	}
	if !env.Success {
		t.Fatalf("envelope = %+v", env)
	}
	if len(env.Warnings) == 0 {
		t.Fatal("keyless gas command must carry the mock-data warning")
	}
}

func TestSchemaCommandDescribesSurface(t *testing.T) {
	code, stdout, _ := runCommand(t, "schema")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	var described struct {
		Path        string `json:"path"`
		GlobalFlags []struct {
			Name string `json:"name"`
		} `json:"globalFlags"`
		Subcommands []struct {
			Path string `json:"path"`
		} `json:"subcommands"`
	}
	if err := json.Unmarshal([]byte(stdout), &described); err != nil {
		t.Fatalf("schema output is not JSON: %v\n%s", err, stdout)
	}
	if described.Path != version.Name {
		t.Fatalf("root path = %q", described.Path)
	}
	names := map[string]bool{}
	for _, sub := range described.Subcommands {
		names[sub.Path] = true
	}
	for _, want := range []string{"copilotd serve", "copilotd quote", "copilotd gas"} {
		if !names[want] {
			t.Fatalf("schema missing %q: %v", want, names)
		}
	}
	foundNoCache := false
	for _, f := range described.GlobalFlags {
		if f.Name == "no-cache" {
			foundNoCache = true
		}
	}
	if !foundNoCache {
		t.Fatal("global flags must include no-cache")
	}

	code, stdout, _ = runCommand(t, "schema", "quote")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, `"copilotd quote"`) || !strings.Contains(stdout, `"slippage"`) {
		t.Fatalf("quote schema = %s", stdout)
	}

	code, _, _ = runCommand(t, "schema", "no-such-command")
	if code != 2 {
		t.Fatalf("unknown path exit code = %d, want 2", code)
	}
}

func TestConflictingOutputFlagsExitUsage(t *testing.T) {
	code, _, stderr := runCommand(t, "tokens", "--json", "--plain", "--no-cache")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2 for usage error", code)
	}
	if !strings.Contains(stderr, "json") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestUnknownFlagExitUsage(t *testing.T) {
	code, _, _ := runCommand(t, "tokens", "--definitely-not-a-flag")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
