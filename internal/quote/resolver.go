// Package quote resolves swap quotes: live reads against a Uniswap V3
// QuoterV2 contract with a designed-in degradation to static mock rates.
// Fallback is the failure path by construction; a quote request never
// propagates an upstream error to its caller.
package quote

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/registry"
	"github.com/defi-copilot/copilotd/internal/token"
)

// DefaultSlippagePct is applied when the caller's slippage is absent or
// unparseable.
const DefaultSlippagePct = 0.5

const (
	wrapGasEstimate     = "45000"
	fallbackGasEstimate = "150000"
	fallbackNote        = "mock pricing: live quoter unavailable"
)

var (
	quoterABI = mustABI(registry.UniswapV3QuoterV2ABI)
)

type quoteExactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	AmountIn          *big.Int       `abi:"amountIn"`
	Fee               *big.Int       `abi:"fee"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

// ContractCaller is the read-only RPC slice the resolver needs; ethclient
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Resolver struct {
	caller  ContractCaller
	chainID int64
	feeTier int64
	quoter  common.Address
	log     *zap.Logger
	now     func() time.Time
}

func NewResolver(caller ContractCaller, chainID, feeTier int64, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resolver{caller: caller, chainID: chainID, feeTier: feeTier, log: log, now: time.Now}
	if quoterRaw, _, ok := registry.UniswapV3Contracts(chainID); ok {
		r.quoter = common.HexToAddress(quoterRaw)
	}
	return r
}

// GetQuote resolves from/to symbols and an amount in decimal form. A zero
// amount yields (nil, nil): no actionable quote, not an error. Unknown
// symbols resolve to the wrapped-native fallback token.
func (r *Resolver) GetQuote(ctx context.Context, fromSymbol, toSymbol, amountDecimal string, slippagePct float64) (*model.Quote, error) {
	if token.IsZeroAmount(amountDecimal) {
		return nil, nil
	}
	from, known := token.Resolve(r.chainID, fromSymbol)
	if !known {
		r.log.Debug("unknown from token, using fallback", zap.String("symbol", fromSymbol))
	}
	to, known := token.Resolve(r.chainID, toSymbol)
	if !known {
		r.log.Debug("unknown to token, using fallback", zap.String("symbol", toSymbol))
	}
	if from.Address == to.Address && from.Symbol == to.Symbol {
		return nil, cperr.New(cperr.CodeInvalidInput, "from and to tokens must differ")
	}

	amountIn, err := token.ParseAmount(amountDecimal, from.Decimals)
	if err != nil {
		return nil, err
	}
	if slippagePct <= 0 || slippagePct >= 100 {
		slippagePct = DefaultSlippagePct
	}

	// Wrap/unwrap converts at exactly 1:1 and never touches the quoter.
	if token.IsWrapPair(from, to) {
		return r.wrapQuote(from, to, amountIn, slippagePct), nil
	}

	out, gasEstimate, err := r.quoteOnChain(ctx, from, to, amountIn)
	if err != nil {
		r.log.Warn("live quote failed, serving fallback",
			zap.String("pair", from.Symbol+"/"+to.Symbol),
			zap.Error(err))
		return r.fallbackQuote(from, to, amountIn, slippagePct), nil
	}
	return r.buildQuote(from, to, amountIn, out, gasEstimate, slippagePct, false), nil
}

func (r *Resolver) wrapQuote(from, to token.Token, amountIn *big.Int, slippagePct float64) *model.Quote {
	q := r.buildQuote(from, to, amountIn, new(big.Int).Set(amountIn), wrapGasEstimate, slippagePct, false)
	// 1:1 conversion tolerates no slippage.
	q.ToAmountMin = q.ToAmount
	q.Route = []model.RouteHop{{Pool: "weth", TokenIn: from.Symbol, TokenOut: to.Symbol}}
	return q
}

func (r *Resolver) fallbackQuote(from, to token.Token, amountIn *big.Int, slippagePct float64) *model.Quote {
	rate, ok := FallbackRate(from.Symbol, to.Symbol)
	if !ok {
		// No mock price either; quote 1:1 so the UI still renders something
		// clearly marked as fallback.
		rate = big.NewRat(1, 1)
	}
	amountRat := new(big.Rat).SetFrac(amountIn, pow10(from.Decimals))
	outRat := new(big.Rat).Mul(amountRat, rate)
	outUnits := ratToUnits(outRat, to.Decimals)

	q := r.buildQuote(from, to, amountIn, outUnits, fallbackGasEstimate, slippagePct, true)
	q.FallbackNote = fallbackNote
	return q
}

func (r *Resolver) buildQuote(from, to token.Token, amountIn, amountOut *big.Int, gasEstimate string, slippagePct float64, isFallback bool) *model.Quote {
	minOut := applySlippage(amountOut, slippagePct)
	return &model.Quote{
		FromToken:   from.Symbol,
		ToToken:     to.Symbol,
		FromAmount:  token.FormatUnits(amountIn, from.Decimals),
		ToAmount:    token.FormatUnits(amountOut, to.Decimals),
		ToAmountMin: token.FormatUnits(minOut, to.Decimals),
		Rate:        rateString(amountIn, from.Decimals, amountOut, to.Decimals),
		GasEstimate: gasEstimate,
		Route: []model.RouteHop{{
			Pool:     "uniswap-v3",
			TokenIn:  from.Symbol,
			TokenOut: to.Symbol,
			FeeBps:   r.feeTier / 100,
		}},
		IsFallback: isFallback,
		FetchedAt:  r.now().UTC(),
	}
}

func (r *Resolver) quoteOnChain(ctx context.Context, from, to token.Token, amountIn *big.Int) (*big.Int, string, error) {
	if r.caller == nil || r.quoter == (common.Address{}) {
		return nil, "", cperr.New(cperr.CodeUnsupported, "no quoter contract configured for chain")
	}
	// Native input quotes through its wrapped form; the router wraps on
	// execution.
	tokenIn := quotableAddress(r.chainID, from)
	tokenOut := quotableAddress(r.chainID, to)

	callData, err := quoterABI.Pack("quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(r.feeTier),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, "", cperr.Wrap(cperr.CodeInternal, "pack quoter calldata", err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.quoter, Data: callData}, nil)
	if err != nil {
		return nil, "", cperr.Wrap(cperr.CodeUpstream, "quoter call failed", err)
	}
	decoded, err := quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil || len(decoded) < 4 {
		return nil, "", cperr.Wrap(cperr.CodeUpstream, "decode quoter response", err)
	}
	amountOut, ok := decoded[0].(*big.Int)
	if !ok || amountOut == nil || amountOut.Sign() <= 0 {
		return nil, "", cperr.New(cperr.CodeUpstream, "quoter returned no liquidity for pair")
	}
	gasEstimate := fallbackGasEstimate
	if g, ok := decoded[3].(*big.Int); ok && g != nil && g.Sign() > 0 {
		gasEstimate = g.String()
	}
	return amountOut, gasEstimate, nil
}

func quotableAddress(chainID int64, t token.Token) common.Address {
	if t.Native {
		if wrapped, ok := token.Resolve(chainID, token.WrappedSymbol); ok {
			return wrapped.Addr()
		}
	}
	return t.Addr()
}

// applySlippage computes floor(amount * (1 - pct/100)) in basis points so
// the arithmetic stays integral.
func applySlippage(amount *big.Int, pct float64) *big.Int {
	bps := int64(pct * 100)
	if bps < 0 {
		bps = 0
	}
	if bps > 9999 {
		bps = 9999
	}
	out := new(big.Int).Mul(amount, big.NewInt(10_000-bps))
	return out.Div(out, big.NewInt(10_000))
}

func rateString(amountIn *big.Int, inDecimals int, amountOut *big.Int, outDecimals int) string {
	if amountIn.Sign() == 0 {
		return "0"
	}
	in := new(big.Rat).SetFrac(amountIn, pow10(inDecimals))
	out := new(big.Rat).SetFrac(amountOut, pow10(outDecimals))
	rate := new(big.Rat).Quo(out, in)
	return trimRat(rate.FloatString(8))
}

func ratToUnits(v *big.Rat, decimals int) *big.Int {
	scaled := new(big.Rat).Mul(v, new(big.Rat).SetInt(pow10(decimals)))
	out := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func trimRat(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
