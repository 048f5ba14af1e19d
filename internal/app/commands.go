package app

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/gas"
	"github.com/defi-copilot/copilotd/internal/httpx"
	"github.com/defi-copilot/copilotd/internal/providers/etherscan"
	"github.com/defi-copilot/copilotd/internal/quote"
	"github.com/defi-copilot/copilotd/internal/registry"
)

// quote and gas also work as one-shot commands so the API surface can be
// scripted without a running server.

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var from, to, amount string
	var slippage float64
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a swap quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := quote.NewResolver(s.dialCaller(cmd.Context()), s.settings.TargetChainID, s.settings.FeeTier, s.log)
			q, err := resolver.GetQuote(cmd.Context(), from, to, amount, slippage)
			if err != nil {
				return err
			}
			if q == nil {
				return s.emit(nil, "amount is zero, nothing to quote")
			}
			var warnings []string
			if q.IsFallback {
				warnings = append(warnings, q.FallbackNote)
			}
			return s.emit(q, warnings...)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Token to sell")
	cmd.Flags().StringVar(&to, "to", "", "Token to buy")
	cmd.Flags().StringVar(&amount, "amount", "0", "Amount to sell (decimal)")
	cmd.Flags().Float64Var(&slippage, "slippage", 0, "Slippage tolerance percent")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *runtimeState) newGasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gas",
		Short: "Fetch current gas prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
			tracker := etherscan.New(httpClient, s.settings.GasTrackerURL, s.settings.GasTrackerAPIKey, s.log)
			oracle := gas.NewOracle(tracker, s.cache, s.settings.GasCacheTTL, s.log)
			report := oracle.Report(cmd.Context())
			var warnings []string
			if report.Note != "" {
				warnings = append(warnings, report.Note)
			}
			return s.emit(report, warnings...)
		},
	}
}

// dialCaller returns a read-only RPC caller, or nil when no endpoint is
// reachable; quote resolution then serves fallback pricing.
func (s *runtimeState) dialCaller(ctx context.Context) quote.ContractCaller {
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.TargetChainID)
	if err != nil {
		s.log.Warn("no rpc endpoint resolved", zap.Error(err))
		return nil
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		s.log.Warn("rpc dial failed", zap.String("rpc", rpcURL), zap.Error(err))
		return nil
	}
	return client
}
