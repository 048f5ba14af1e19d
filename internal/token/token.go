package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an asset the assistant can quote or move. Native tokens
// carry the zero address and never require an ERC-20 approval.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Native   bool   `json:"native"`
}

func (t Token) Addr() common.Address {
	return common.HexToAddress(t.Address)
}

const (
	ChainMainnet = int64(1)
	ChainSepolia = int64(11155111)
)

// NativeSymbol is the chain currency; WrappedSymbol is its 1:1 ERC-20 form.
const (
	NativeSymbol  = "ETH"
	WrappedSymbol = "WETH"
)

var tokensByChain = map[int64][]Token{
	ChainMainnet: {
		{Symbol: "ETH", Name: "Ether", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Native: true},
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		{Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{Symbol: "WBTC", Name: "Wrapped BTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
	},
	ChainSepolia: {
		{Symbol: "ETH", Name: "Ether", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Native: true},
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Decimals: 18},
		{Symbol: "USDC", Name: "USD Coin", Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Decimals: 6},
		{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x3e622317f8C93f7328350cF0B56d9eD4C620C5d6", Decimals: 18},
	},
}

// Resolve maps a user-supplied symbol to a known token on the chain.
// Unknown symbols resolve to the wrapped-native fallback rather than
// erroring, so a bad symbol degrades into a fallback quote instead of a
// failed request.
func Resolve(chainID int64, symbol string) (Token, bool) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range tokensByChain[chainID] {
		if t.Symbol == sym {
			return t, true
		}
	}
	if fb, ok := lookup(chainID, WrappedSymbol); ok {
		return fb, false
	}
	return Token{}, false
}

// ByAddress finds a known token by its contract address.
func ByAddress(chainID int64, address string) (Token, bool) {
	if !common.IsHexAddress(address) {
		return Token{}, false
	}
	want := common.HexToAddress(address)
	for _, t := range tokensByChain[chainID] {
		if common.HexToAddress(t.Address) == want {
			return t, true
		}
	}
	return Token{}, false
}

// Known lists the registry for a chain.
func Known(chainID int64) []Token {
	src := tokensByChain[chainID]
	out := make([]Token, len(src))
	copy(out, src)
	return out
}

// IsWrapPair reports whether a and b form a native<->wrapped pair, which is
// always quoted 1:1 without touching the quoter contract.
func IsWrapPair(a, b Token) bool {
	return (a.Native && b.Symbol == WrappedSymbol) || (b.Native && a.Symbol == WrappedSymbol)
}

func lookup(chainID int64, symbol string) (Token, bool) {
	for _, t := range tokensByChain[chainID] {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}
