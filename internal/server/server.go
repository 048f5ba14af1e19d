// Package server exposes the assistant over HTTP: a streaming chat
// endpoint plus REST surfaces for wallet, quotes, gas, simulation and
// transaction tracking.
package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	"github.com/defi-copilot/copilotd/internal/config"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/quote"
	"github.com/defi-copilot/copilotd/internal/sim"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/txmon"
	"github.com/defi-copilot/copilotd/internal/version"
)

// The service interfaces are the narrow slices the handlers consume;
// the concrete session, resolver, gate, monitor and orchestrator types
// satisfy them.
type (
	WalletService interface {
		Connect(ctx context.Context) bool
		Disconnect()
		State() model.WalletState
		RefreshBalance(ctx context.Context)
	}

	QuoteService interface {
		GetQuote(ctx context.Context, fromSymbol, toSymbol, amountDecimal string, slippagePct float64) (*model.Quote, error)
	}

	SwapService interface {
		Build(q *model.Quote, recipient common.Address) (txmon.Request, error)
	}

	ApprovalService interface {
		NeedsApproval(ctx context.Context, owner common.Address, tok token.Token, amount *big.Int) (bool, error)
		Approve(ctx context.Context, tok token.Token, amount *big.Int) (txmon.Record, error)
	}

	TxService interface {
		Submit(ctx context.Context, req txmon.Request) (txmon.Record, error)
		Get(hash string) (txmon.Record, bool)
		Records() []txmon.Record
	}

	GasService interface {
		Report(ctx context.Context) model.GasReport
	}

	SimService interface {
		Simulate(ctx context.Context, req sim.Request) (model.SimulationResult, error)
	}

	ChatService interface {
		Send(ctx context.Context, text string) (<-chan model.StreamEvent, error)
		History() []model.Message
	}
)

type Deps struct {
	Wallet   WalletService
	Quotes   QuoteService
	Swaps    SwapService
	Approval ApprovalService
	Txs      TxService
	Gas      GasService
	Sim      SimService
	Chat     ChatService
	Context  *aictx.Store
}

type Server struct {
	cfg  config.Settings
	deps Deps
	log  *zap.Logger
	http *http.Server

	// quoteMirror coalesces bursts of quote requests so the AI context
	// sees only the settled quote, not every keystroke's intermediate one.
	quoteMirror *quote.Debouncer
}

func New(cfg config.Settings, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log, quoteMirror: quote.NewDebouncer(quote.DefaultDebounce)}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/chat/history", s.handleChatHistory)

		r.Get("/wallet", s.handleWalletState)
		r.Post("/wallet/connect", s.handleWalletConnect)
		r.Post("/wallet/disconnect", s.handleWalletDisconnect)

		r.Post("/quote", s.handleQuote)
		r.Get("/gas", s.handleGas)
		r.Post("/simulate", s.handleSimulate)

		r.Post("/approve", s.handleApprove)
		r.Post("/swap", s.handleSwap)
		r.Post("/tx/send", s.handleTxSend)
		r.Get("/tx", s.handleTxList)
		r.Get("/tx/{hash}", s.handleTxGet)

		r.Get("/context", s.handleContext)
	})

	return r
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.quoteMirror.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
