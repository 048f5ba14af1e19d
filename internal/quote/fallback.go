package quote

import (
	"math/big"
	"strings"
)

// Approximate USD marks used when no live pricing source is reachable.
// This table is the single source of mock rates: every fallback path in
// the repo prices through FallbackRate so degraded quotes can never
// diverge between callers.
var fallbackUSD = map[string]*big.Rat{
	"ETH":  big.NewRat(3000, 1),
	"WETH": big.NewRat(3000, 1),
	"USDC": big.NewRat(1, 1),
	"USDT": big.NewRat(1, 1),
	"DAI":  big.NewRat(1, 1),
	"WBTC": big.NewRat(60000, 1),
}

// FallbackRate returns the static from→to exchange rate, or false when
// either symbol has no mock price.
func FallbackRate(fromSymbol, toSymbol string) (*big.Rat, bool) {
	from, ok := fallbackUSD[strings.ToUpper(strings.TrimSpace(fromSymbol))]
	if !ok {
		return nil, false
	}
	to, ok := fallbackUSD[strings.ToUpper(strings.TrimSpace(toSymbol))]
	if !ok {
		return nil, false
	}
	return new(big.Rat).Quo(from, to), true
}
