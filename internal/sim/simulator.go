// Package sim dry-runs transactions with eth_call before anything is
// signed. A revert is a result, not an error: callers always get a
// SimulationResult they can show.
package sim

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/gas"
	"github.com/defi-copilot/copilotd/internal/model"
)

// defaultGasEstimate covers the case where both eth_call and
// eth_estimateGas are unavailable.
const defaultGasEstimate = uint64(120_000)

type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

type Request struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

type Simulator struct {
	backend Backend
	oracle  *gas.Oracle
	log     *zap.Logger
}

func New(backend Backend, oracle *gas.Oracle, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{backend: backend, oracle: oracle, log: log}
}

// Simulate dry-runs the request. Malformed input is the only error path;
// upstream trouble degrades to a result with warnings.
func (s *Simulator) Simulate(ctx context.Context, req Request) (model.SimulationResult, error) {
	if !common.IsHexAddress(req.To) {
		return model.SimulationResult{}, cperr.New(cperr.CodeInvalidInput, "simulate: invalid to address")
	}
	to := common.HexToAddress(req.To)

	var from common.Address
	if req.From != "" {
		if !common.IsHexAddress(req.From) {
			return model.SimulationResult{}, cperr.New(cperr.CodeInvalidInput, "simulate: invalid from address")
		}
		from = common.HexToAddress(req.From)
	}

	value := new(big.Int)
	if req.Value != "" {
		parsed, ok := new(big.Int).SetString(strings.TrimPrefix(req.Value, "0x"), valueBase(req.Value))
		if !ok || parsed.Sign() < 0 {
			return model.SimulationResult{}, cperr.New(cperr.CodeInvalidInput, "simulate: invalid value")
		}
		value = parsed
	}

	var data []byte
	if req.Data != "" {
		decoded, err := decodeHex(req.Data)
		if err != nil {
			return model.SimulationResult{}, cperr.New(cperr.CodeInvalidInput, "simulate: invalid calldata hex")
		}
		data = decoded
	}

	call := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	result := model.SimulationResult{Success: true}

	if s.backend != nil {
		if _, err := s.backend.CallContract(ctx, call, nil); err != nil {
			if isRevert(err) {
				result.Success = false
				result.Warnings = append(result.Warnings, "transaction would revert: "+revertReason(err))
			} else {
				result.Warnings = append(result.Warnings, "node unavailable, result is an estimate only")
				s.log.Debug("simulation call failed", zap.Error(err))
			}
		}
	} else {
		result.Warnings = append(result.Warnings, "no RPC backend, result is an estimate only")
	}

	gasLimit := defaultGasEstimate
	if s.backend != nil && result.Success {
		if estimated, err := s.backend.EstimateGas(ctx, call); err == nil {
			gasLimit = estimated
		}
	}
	result.GasEstimate = strconv.FormatUint(gasLimit, 10)
	result.Changes = balanceChanges(req, value)
	result.EstimatedCost = s.cost(ctx, gasLimit)
	return result, nil
}

// balanceChanges reports the native transfer legs. Token-level effects of
// arbitrary calldata need a trace API and are out of reach of eth_call.
func balanceChanges(req Request, value *big.Int) []model.BalanceChange {
	if value.Sign() <= 0 {
		return nil
	}
	changes := []model.BalanceChange{
		{Address: strings.ToLower(req.To), Asset: "ETH", Delta: value.String(), Direction: "in"},
	}
	if req.From != "" {
		changes = append([]model.BalanceChange{
			{Address: strings.ToLower(req.From), Asset: "ETH", Delta: value.String(), Direction: "out"},
		}, changes...)
	}
	return changes
}

func (s *Simulator) cost(ctx context.Context, gasLimit uint64) model.EstimatedCost {
	cost := model.EstimatedCost{GasLimit: strconv.FormatUint(gasLimit, 10)}
	if s.oracle == nil {
		return cost
	}
	report := s.oracle.Report(ctx)
	standardGwei, err := strconv.ParseFloat(report.Standard, 64)
	if err != nil || standardGwei <= 0 {
		return cost
	}

	feeWei := new(big.Float).Mul(big.NewFloat(standardGwei), big.NewFloat(1e9))
	totalWei := new(big.Float).Mul(feeWei, new(big.Float).SetUint64(gasLimit))
	maxFee, _ := feeWei.Int(nil)
	cost.MaxFeeWei = maxFee.String()

	totalEther := new(big.Float).Quo(totalWei, big.NewFloat(1e18))
	cost.TotalEther = totalEther.Text('f', 8)
	return cost
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}

func revertReason(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "revert"); idx >= 0 {
		reason := strings.TrimSpace(msg[idx+len("revert"):])
		reason = strings.TrimPrefix(reason, ":")
		reason = strings.TrimSpace(reason)
		if reason != "" {
			return reason
		}
	}
	return "no reason given"
}

func valueBase(raw string) int {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return 16
	}
	return 10
}

func decodeHex(raw string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(raw, "0x"))
}
