// Package approval gates swaps behind ERC-20 allowance checks. Native
// currency never needs approval; ERC-20 inputs need allowance(owner,
// router) >= amount before the swap action is enabled.
package approval

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/registry"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/txmon"
)

// ApprovalHeadroomFactor requests 2x the immediate need so the same pair
// doesn't re-prompt within a session. This is a bounded allowance, chosen
// deliberately over an unlimited approval; the trade-off is a standing
// allowance beyond the immediate transaction.
const ApprovalHeadroomFactor = 2

var erc20ABI = mustABI(registry.ERC20MinimalABI)

// ContractCaller is the read-only RPC slice for allowance checks.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Gate struct {
	caller  ContractCaller
	monitor *txmon.Monitor
	chainID int64
	router  common.Address
	log     *zap.Logger
}

func NewGate(caller ContractCaller, monitor *txmon.Monitor, chainID int64, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gate{caller: caller, monitor: monitor, chainID: chainID, log: log}
	if _, routerRaw, ok := registry.UniswapV3Contracts(chainID); ok {
		g.router = common.HexToAddress(routerRaw)
	}
	return g
}

// Router is the spender every allowance is checked against.
func (g *Gate) Router() common.Address { return g.router }

// NeedsApproval reports whether a swap of amount base units of tok from
// owner requires an approval transaction first. Always false for native
// currency. While an approval for the pair is still in flight this stays
// true; the swap action remains disabled until a fresh allowance check
// passes.
func (g *Gate) NeedsApproval(ctx context.Context, owner common.Address, tok token.Token, amount *big.Int) (bool, error) {
	if tok.Native {
		return false, nil
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, cperr.New(cperr.CodeInvalidInput, "approval amount must be positive")
	}
	allowance, err := g.allowance(ctx, owner, tok)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(amount) < 0, nil
}

// Approve submits approve(router, 2x amount). A second approval for the
// same (token, spender) is refused while one is pending.
func (g *Gate) Approve(ctx context.Context, tok token.Token, amount *big.Int) (txmon.Record, error) {
	if tok.Native {
		return txmon.Record{}, cperr.New(cperr.CodeInvalidInput, "native currency never requires approval")
	}
	if amount == nil || amount.Sign() <= 0 {
		return txmon.Record{}, cperr.New(cperr.CodeInvalidInput, "approval amount must be positive")
	}
	if g.router == (common.Address{}) {
		return txmon.Record{}, cperr.New(cperr.CodeUnsupported, "no router configured for chain")
	}

	kind := ApprovalKind(tok.Address, g.router.Hex())
	if g.monitor.HasInFlight(kind) {
		return txmon.Record{}, cperr.New(cperr.CodeApprovalRequired, "an approval for this token is already pending")
	}

	headroom := new(big.Int).Mul(amount, big.NewInt(ApprovalHeadroomFactor))
	callData, err := erc20ABI.Pack("approve", g.router, headroom)
	if err != nil {
		return txmon.Record{}, cperr.Wrap(cperr.CodeInternal, "pack approve calldata", err)
	}

	g.log.Info("submitting approval",
		zap.String("token", tok.Symbol),
		zap.String("spender", g.router.Hex()),
		zap.String("amount", headroom.String()))

	return g.monitor.Submit(ctx, txmon.Request{
		Kind: kind,
		To:   tok.Address,
		Data: callData,
	})
}

// ApprovalKind names the in-flight guard key for a (token, spender) pair.
func ApprovalKind(tokenAddr, spender string) string {
	return fmt.Sprintf("approve:%s:%s",
		strings.ToLower(tokenAddr), strings.ToLower(spender))
}

func (g *Gate) allowance(ctx context.Context, owner common.Address, tok token.Token) (*big.Int, error) {
	if g.caller == nil {
		return nil, cperr.New(cperr.CodeUpstream, "no rpc backend available")
	}
	callData, err := erc20ABI.Pack("allowance", owner, g.router)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeInternal, "pack allowance call", err)
	}
	target := tok.Addr()
	out, err := g.caller.CallContract(ctx, ethereum.CallMsg{From: owner, To: &target, Data: callData}, nil)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeUpstream, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(values) == 0 {
		return nil, cperr.Wrap(cperr.CodeUpstream, "decode allowance", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, cperr.New(cperr.CodeUpstream, "invalid allowance response")
	}
	return allowance, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
