package token

import (
	"math/big"
	"testing"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.2345", 18, "1234500000000000000"},
		{"0.000001", 6, "1"},
		{"2.5", 6, "2500000"},
		{"100", 0, "100"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %d) failed: %v", tc.in, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Errorf("ParseAmount(%q, %d) = %s, want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestParseAmountRejectsBadInput(t *testing.T) {
	bad := []string{"", "0", "0.0", "-1", "abc", "1.2.3", "1,5", "0.0000001"}
	for _, in := range bad {
		_, err := ParseAmount(in, 6)
		if err == nil {
			t.Errorf("ParseAmount(%q) accepted, want error", in)
			continue
		}
		if cperr.CodeOf(err) != cperr.CodeInvalidInput {
			t.Errorf("ParseAmount(%q) code = %d, want invalid input", in, cperr.CodeOf(err))
		}
	}
}

func TestIsZeroAmount(t *testing.T) {
	for _, in := range []string{"", "0", "0.0", "0.000", "  "} {
		if !IsZeroAmount(in) {
			t.Errorf("IsZeroAmount(%q) = false, want true", in)
		}
	}
	for _, in := range []string{"0.1", "1", "eleven"} {
		if IsZeroAmount(in) {
			t.Errorf("IsZeroAmount(%q) = true, want false", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1234500000000000000", 18, "1.2345"},
		{"1000000000000000000", 18, "1"},
		{"1", 6, "0.000001"},
		{"0", 18, "0"},
		{"100", 0, "100"},
	}
	for _, tc := range cases {
		v, _ := new(big.Int).SetString(tc.in, 10)
		if got := FormatUnits(v, tc.decimals); got != tc.want {
			t.Errorf("FormatUnits(%s, %d) = %s, want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	parsed, err := ParseAmount("1.2345", 18)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := FormatUnits(parsed, 18); got != "1.2345" {
		t.Fatalf("round trip = %s, want 1.2345", got)
	}
}
