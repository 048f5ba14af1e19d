package quote

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/token"
)

var recipient = common.HexToAddress("0x00000000000000000000000000000000000000AA")

func TestBuildWrapUsesWETHDeposit(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	weth, _ := token.Resolve(token.ChainMainnet, "WETH")

	req, err := b.Build(&model.Quote{
		FromToken: "ETH", ToToken: "WETH",
		FromAmount: "1.5", ToAmount: "1.5", ToAmountMin: "1.5",
	}, recipient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.To != weth.Address {
		t.Fatalf("wrap target = %s, want WETH contract", req.To)
	}
	want, _ := token.ParseAmount("1.5", 18)
	if req.Value.Cmp(want) != 0 {
		t.Fatalf("wrap value = %s, want %s", req.Value, want)
	}
	deposit, _ := wethABI.Pack("deposit")
	if !bytes.Equal(req.Data, deposit) {
		t.Fatal("wrap calldata is not deposit()")
	}
}

func TestBuildUnwrapUsesWETHWithdraw(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	req, err := b.Build(&model.Quote{
		FromToken: "WETH", ToToken: "ETH",
		FromAmount: "2", ToAmount: "2", ToAmountMin: "2",
	}, recipient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Value != nil && req.Value.Sign() != 0 {
		t.Fatalf("unwrap must not attach value, got %s", req.Value)
	}
	amount, _ := token.ParseAmount("2", 18)
	withdraw, _ := wethABI.Pack("withdraw", amount)
	if !bytes.Equal(req.Data, withdraw) {
		t.Fatal("unwrap calldata is not withdraw(amount)")
	}
}

func TestBuildSwapRoutesThroughRouter(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	req, err := b.Build(&model.Quote{
		FromToken: "ETH", ToToken: "USDC",
		FromAmount: "1", ToAmount: "3000", ToAmountMin: "2985",
	}, recipient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.To != b.Router().Hex() {
		t.Fatalf("swap target = %s, want router", req.To)
	}
	// Native input rides along as msg.value.
	oneEth, _ := token.ParseAmount("1", 18)
	if req.Value == nil || req.Value.Cmp(oneEth) != 0 {
		t.Fatalf("native swap value = %v, want 1 ETH", req.Value)
	}
	if req.Kind != "swap:ETH:USDC" {
		t.Fatalf("kind = %s", req.Kind)
	}
}

func TestBuildERC20SwapCarriesNoValue(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	req, err := b.Build(&model.Quote{
		FromToken: "USDC", ToToken: "DAI",
		FromAmount: "100", ToAmount: "100", ToAmountMin: "99.5",
	}, recipient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Value != nil && req.Value.Sign() != 0 {
		t.Fatalf("erc20 swap must not attach value, got %s", req.Value)
	}
}

func TestBuildRefusesFallbackQuote(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	_, err := b.Build(&model.Quote{
		FromToken: "ETH", ToToken: "USDC",
		FromAmount: "1", ToAmountMin: "2985", IsFallback: true,
	}, recipient)
	if cperr.CodeOf(err) != cperr.CodeUnsupported {
		t.Fatalf("fallback quote build code = %d, want unsupported", cperr.CodeOf(err))
	}
}

func TestBuildRefusesNilQuote(t *testing.T) {
	b := NewSwapBuilder(token.ChainMainnet, 3000)
	if _, err := b.Build(nil, recipient); err == nil {
		t.Fatal("nil quote must be rejected")
	}
}
