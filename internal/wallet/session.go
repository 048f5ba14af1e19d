// Package wallet adapts a signing key plus an RPC connection into the
// session the rest of the assistant treats as "the wallet": connection
// state, balance, chain id, and the target-network check.
package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/registry"
	"github.com/defi-copilot/copilotd/internal/signer"
	"github.com/defi-copilot/copilotd/internal/token"
)

// Backend is the slice of the RPC client the session needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens a Backend for an RPC URL. Tests substitute fakes.
type Dialer func(ctx context.Context, rawurl string) (Backend, error)

// EthDialer is the production dialer backed by go-ethereum's ethclient.
func EthDialer(ctx context.Context, rawurl string) (Backend, error) {
	return ethclient.DialContext(ctx, rawurl)
}

type Config struct {
	TargetChainID int64
	RPCURL        string // optional override; default comes from the registry
}

// Session owns the WalletState snapshot exclusively; every other component
// reads it through State() or the AI context mirror.
type Session struct {
	cfg    Config
	signer signer.Signer
	dial   Dialer
	ctxSt  *aictx.Store
	log    *zap.Logger

	mu             sync.Mutex
	backend        Backend
	rpcURL         string
	state          model.WalletState
	networkChecked bool
	networkChecks  int
}

func NewSession(cfg Config, sig signer.Signer, dial Dialer, ctxStore *aictx.Store, log *zap.Logger) *Session {
	if dial == nil {
		dial = EthDialer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, signer: sig, dial: dial, ctxSt: ctxStore, log: log}
}

// Connect dials the RPC, captures chain id and balance, and schedules the
// single per-connection network check. Connector failures surface as a
// boolean, not an error; the caller decides whether to prompt again.
func (s *Session) Connect(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsConnected {
		return true
	}
	if s.signer == nil {
		s.log.Warn("no signing key configured, cannot connect")
		return false
	}

	rpcURL, err := registry.ResolveRPCURL(s.cfg.RPCURL, s.cfg.TargetChainID)
	if err != nil {
		s.log.Warn("resolve rpc url failed", zap.Error(err))
		return false
	}
	backend, err := s.dial(ctx, rpcURL)
	if err != nil {
		s.log.Warn("wallet connect failed", zap.String("rpc", rpcURL), zap.Error(err))
		return false
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		s.log.Warn("read chain id failed", zap.Error(err))
		return false
	}

	s.backend = backend
	s.rpcURL = rpcURL
	s.networkChecked = false
	s.state = model.WalletState{
		IsConnected:   true,
		Address:       s.signer.Address().Hex(),
		ChainID:       chainID.Int64(),
		ChainName:     registry.ChainName(chainID.Int64()),
		ConnectorName: s.signer.Source(),
	}
	s.refreshBalanceLocked(ctx)

	// One network check per connection; the flag resets on disconnect so
	// a reconnect prompts again, but repeated calls within a session don't.
	if !s.networkChecked {
		s.networkChecked = true
		s.networkChecks++
		if s.state.ChainID != s.cfg.TargetChainID {
			s.switchNetworkLocked(ctx)
		}
	}

	s.syncContextLocked()
	s.log.Info("wallet connected",
		zap.String("address", s.state.Address),
		zap.Int64("chain_id", s.state.ChainID),
		zap.String("connector", s.state.ConnectorName))
	return true
}

// Disconnect clears the session state and resets the network-check guard.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
	s.state = model.WalletState{}
	s.networkChecked = false
	s.syncContextLocked()
	s.log.Info("wallet disconnected")
}

// EnsureCorrectNetwork re-dials the target chain's RPC when the session is
// connected elsewhere. Returns false, without an error, when the target
// chain is unreachable.
func (s *Session) EnsureCorrectNetwork(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsConnected {
		return false
	}
	if s.state.ChainID == s.cfg.TargetChainID {
		return true
	}
	return s.switchNetworkLocked(ctx)
}

func (s *Session) switchNetworkLocked(ctx context.Context) bool {
	targetURL, ok := registry.DefaultRPCURL(s.cfg.TargetChainID)
	if !ok {
		s.log.Warn("no default rpc for target chain", zap.Int64("chain_id", s.cfg.TargetChainID))
		return false
	}
	backend, err := s.dial(ctx, targetURL)
	if err != nil {
		s.log.Warn("network switch failed", zap.Int64("target", s.cfg.TargetChainID), zap.Error(err))
		return false
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil || chainID.Int64() != s.cfg.TargetChainID {
		backend.Close()
		s.log.Warn("network switch verification failed", zap.Error(err))
		return false
	}
	if s.backend != nil {
		s.backend.Close()
	}
	s.backend = backend
	s.rpcURL = targetURL
	s.state.ChainID = chainID.Int64()
	s.state.ChainName = registry.ChainName(chainID.Int64())
	s.refreshBalanceLocked(ctx)
	s.syncContextLocked()
	s.log.Info("switched network", zap.Int64("chain_id", s.state.ChainID))
	return true
}

// RefreshBalance re-reads the native balance and mirrors it into the AI
// context.
func (s *Session) RefreshBalance(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsConnected {
		return
	}
	s.refreshBalanceLocked(ctx)
	s.syncContextLocked()
}

func (s *Session) refreshBalanceLocked(ctx context.Context) {
	if s.backend == nil {
		return
	}
	bal, err := s.backend.BalanceAt(ctx, s.signer.Address(), nil)
	if err != nil {
		s.log.Warn("balance read failed", zap.Error(err))
		return
	}
	s.state.Balance = token.FormatUnits(bal, 18)
}

// State returns an immutable snapshot.
func (s *Session) State() model.WalletState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RPCURL reports the endpoint the session currently uses, so shared RPC
// consumers can be wired against the same node after Connect.
func (s *Session) RPCURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpcURL
}

// NetworkChecks reports how many automatic checks ran (one per connection).
func (s *Session) NetworkChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkChecks
}

func (s *Session) Signer() signer.Signer { return s.signer }

func (s *Session) syncContextLocked() {
	if s.ctxSt == nil {
		return
	}
	st := s.state
	s.ctxSt.Update("wallet", aictx.Partial{Wallet: &st})
}
