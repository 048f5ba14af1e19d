package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	"github.com/defi-copilot/copilotd/internal/approval"
	"github.com/defi-copilot/copilotd/internal/chat"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/gas"
	"github.com/defi-copilot/copilotd/internal/httpx"
	"github.com/defi-copilot/copilotd/internal/policy"
	"github.com/defi-copilot/copilotd/internal/providers/etherscan"
	"github.com/defi-copilot/copilotd/internal/providers/openai"
	"github.com/defi-copilot/copilotd/internal/quote"
	"github.com/defi-copilot/copilotd/internal/registry"
	"github.com/defi-copilot/copilotd/internal/server"
	"github.com/defi-copilot/copilotd/internal/signer"
	"github.com/defi-copilot/copilotd/internal/sim"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/txmon"
	"github.com/defi-copilot/copilotd/internal/wallet"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				s.settings.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := s.buildServer(ctx)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default :8787)")
	return cmd
}

// buildServer assembles the full service graph. Missing pieces degrade
// instead of aborting: no signing key means the wallet stays disconnected,
// an unreachable RPC means fallback quotes and mock-flavored simulation.
func (s *runtimeState) buildServer(ctx context.Context) (*server.Server, error) {
	cfg := s.settings
	log := s.log

	httpClient := httpx.New(cfg.Timeout, cfg.Retries)
	ctxStore := aictx.NewStore()

	var sig signer.Signer
	if local, err := signer.NewLocalSignerFromEnv(); err != nil {
		log.Warn("no signing key loaded, wallet features disabled", zap.Error(err))
	} else {
		sig = local
	}

	session := wallet.NewSession(wallet.Config{
		TargetChainID: cfg.TargetChainID,
		RPCURL:        cfg.RPCURL,
	}, sig, nil, ctxStore, log)

	var (
		quoteCaller quote.ContractCaller
		gateCaller  approval.ContractCaller
		simBackend  sim.Backend
		monBackend  txmon.Backend
	)
	if rpcURL, err := registry.ResolveRPCURL(cfg.RPCURL, cfg.TargetChainID); err != nil {
		log.Warn("no rpc endpoint resolved", zap.Error(err))
	} else if client, err := ethclient.DialContext(ctx, rpcURL); err != nil {
		log.Warn("rpc dial failed, serving in degraded mode",
			zap.String("rpc", rpcURL), zap.Error(err))
	} else {
		quoteCaller = client
		gateCaller = client
		simBackend = client
		monBackend = client
	}

	monitor := txmon.NewMonitor(monBackend, session, ctxStore, txmon.Options{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxPollAttempts,
	}, log)
	// A confirmed transaction changes the balance the context reports.
	monitor.OnConfirmed(func(txmon.Record) {
		session.RefreshBalance(context.Background())
	})

	gate := approval.NewGate(gateCaller, monitor, cfg.TargetChainID, log)
	resolver := quote.NewResolver(quoteCaller, cfg.TargetChainID, cfg.FeeTier, log)
	swaps := quote.NewSwapBuilder(cfg.TargetChainID, cfg.FeeTier)

	tracker := etherscan.New(httpClient, cfg.GasTrackerURL, cfg.GasTrackerAPIKey, log)
	oracle := gas.NewOracle(tracker, s.cache, cfg.GasCacheTTL, log)
	simulator := sim.New(simBackend, oracle, log)

	llm := openai.New(httpClient, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)
	orchestrator := chat.NewOrchestrator(llm, ctxStore, policy.New(), log)

	if len(token.Known(cfg.TargetChainID)) == 0 {
		return nil, cperr.New(cperr.CodeUnsupported, "no token registry for target chain")
	}

	return server.New(cfg, server.Deps{
		Wallet:   session,
		Quotes:   resolver,
		Swaps:    swaps,
		Approval: gate,
		Txs:      monitor,
		Gas:      oracle,
		Sim:      simulator,
		Chat:     orchestrator,
		Context:  ctxStore,
	}, log), nil
}
