package quote

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/registry"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/txmon"
)

var (
	routerABI = mustABI(registry.UniswapV3RouterABI)
	wethABI   = mustABI(registry.WETHABI)
)

type exactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

// SwapBuilder turns a resolved quote into an unsigned transaction request.
// The enforced minimum output is the quote's ToAmountMin, so the slippage
// shown to the user is the slippage the router enforces.
type SwapBuilder struct {
	chainID int64
	feeTier int64
	router  common.Address
}

func NewSwapBuilder(chainID, feeTier int64) *SwapBuilder {
	b := &SwapBuilder{chainID: chainID, feeTier: feeTier}
	if _, routerRaw, ok := registry.UniswapV3Contracts(chainID); ok {
		b.router = common.HexToAddress(routerRaw)
	}
	return b
}

func (b *SwapBuilder) Router() common.Address { return b.router }

// SwapKind is the monitor record kind for a pair, used for in-flight
// deduplication.
func SwapKind(fromSymbol, toSymbol string) string {
	return fmt.Sprintf("swap:%s:%s", strings.ToUpper(fromSymbol), strings.ToUpper(toSymbol))
}

// Build produces the transaction request executing q for recipient. Wrap
// pairs go straight to the WETH contract; everything else routes through
// exactInputSingle.
func (b *SwapBuilder) Build(q *model.Quote, recipient common.Address) (txmon.Request, error) {
	if q == nil {
		return txmon.Request{}, cperr.New(cperr.CodeInvalidInput, "no quote to execute")
	}
	if q.IsFallback {
		return txmon.Request{}, cperr.New(cperr.CodeUnsupported, "cannot execute a fallback quote, live pricing required")
	}

	from, _ := token.Resolve(b.chainID, q.FromToken)
	to, _ := token.Resolve(b.chainID, q.ToToken)
	amountIn, err := token.ParseAmount(q.FromAmount, from.Decimals)
	if err != nil {
		return txmon.Request{}, err
	}
	minOut, err := token.ParseAmount(q.ToAmountMin, to.Decimals)
	if err != nil {
		return txmon.Request{}, err
	}

	if token.IsWrapPair(from, to) {
		return b.buildWrap(from, to, amountIn)
	}
	if b.router == (common.Address{}) {
		return txmon.Request{}, cperr.New(cperr.CodeUnsupported, "no swap router configured for chain")
	}

	callData, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           quotableAddress(b.chainID, from),
		TokenOut:          quotableAddress(b.chainID, to),
		Fee:               big.NewInt(b.feeTier),
		Recipient:         recipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return txmon.Request{}, cperr.Wrap(cperr.CodeInternal, "pack router calldata", err)
	}

	req := txmon.Request{
		Kind: SwapKind(from.Symbol, to.Symbol),
		To:   b.router.Hex(),
		Data: callData,
	}
	// Native input is carried as msg.value; the router wraps it.
	if from.Native {
		req.Value = amountIn
	}
	return req, nil
}

func (b *SwapBuilder) buildWrap(from, to token.Token, amountIn *big.Int) (txmon.Request, error) {
	if from.Native {
		callData, err := wethABI.Pack("deposit")
		if err != nil {
			return txmon.Request{}, cperr.Wrap(cperr.CodeInternal, "pack deposit calldata", err)
		}
		return txmon.Request{
			Kind:  SwapKind(from.Symbol, to.Symbol),
			To:    to.Address,
			Value: amountIn,
			Data:  callData,
		}, nil
	}
	callData, err := wethABI.Pack("withdraw", amountIn)
	if err != nil {
		return txmon.Request{}, cperr.Wrap(cperr.CodeInternal, "pack withdraw calldata", err)
	}
	return txmon.Request{
		Kind: SwapKind(from.Symbol, to.Symbol),
		To:   from.Address,
		Data: callData,
	}, nil
}
