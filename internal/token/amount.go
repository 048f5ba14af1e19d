package token

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount converts a human decimal amount ("1.2345") into base units for
// the token's decimals. Zero and negative amounts are rejected as invalid
// input; callers that want "no quote" semantics check for zero first.
func ParseAmount(decimal string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(decimal)
	if clean == "" {
		return nil, cperr.New(cperr.CodeInvalidInput, "amount is required")
	}
	if strings.HasPrefix(clean, "-") {
		return nil, cperr.New(cperr.CodeInvalidInput, "amount must be positive")
	}
	if !decimalPattern.MatchString(clean) {
		return nil, cperr.New(cperr.CodeInvalidInput, "amount must be in decimal form like 1.23")
	}
	if decimals < 0 {
		return nil, cperr.New(cperr.CodeInvalidInput, "decimals must be >= 0")
	}

	parts := strings.SplitN(clean, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, cperr.New(cperr.CodeInvalidInput, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return nil, cperr.New(cperr.CodeInvalidInput, "amount must be positive")
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, cperr.New(cperr.CodeInvalidInput, "invalid decimal amount")
	}
	return out, nil
}

// IsZeroAmount reports whether the input parses as exactly zero. Used to
// suppress quote requests for empty/zero inputs without raising an error.
func IsZeroAmount(decimal string) bool {
	clean := strings.TrimSpace(decimal)
	if clean == "" {
		return true
	}
	if !decimalPattern.MatchString(clean) {
		return false
	}
	return strings.Trim(strings.ReplaceAll(clean, ".", ""), "0") == ""
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	s := new(big.Int).Abs(baseUnits).String()
	neg := baseUnits.Sign() < 0

	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		intPart := s[:len(s)-decimals]
		fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
		if fracPart == "" {
			s = intPart
		} else {
			s = intPart + "." + fracPart
		}
	}
	if neg {
		return "-" + s
	}
	return s
}
