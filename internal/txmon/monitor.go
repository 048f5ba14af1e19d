// Package txmon submits transactions and tracks each one through the
// pending → confirming → confirmed lifecycle, with failed reachable from
// either non-terminal state. Monitoring is a bounded poll, not an open
// subscription: a receipt that never shows up inside the window leaves the
// record in its last observed state for the caller to re-initiate.
package txmon

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/signer"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 60
	gasLimitMultiplier  = 1.2
)

// Backend is the RPC slice used for submission and receipt polling;
// ethclient satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WalletProvider is the slice of the wallet session the monitor needs.
type WalletProvider interface {
	State() model.WalletState
	Signer() signer.Signer
}

// Record is one tracked transaction. Status moves strictly forward;
// Confirmed and Failed are terminal.
type Record struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Hash        string         `json:"hash,omitempty"`
	Status      model.TxStatus `json:"status"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Error       string         `json:"error,omitempty"`
}

func (r Record) Summary() model.TransactionSummary {
	return model.TransactionSummary{
		Hash:        r.Hash,
		Kind:        r.Kind,
		Status:      r.Status,
		SubmittedAt: r.SubmittedAt,
		Error:       r.Error,
	}
}

// Request describes a transaction to submit: a plain transfer, an ERC-20
// approval, or a router call.
type Request struct {
	Kind     string
	To       string
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// Monitor owns the in-memory record registry for the session lifetime.
type Monitor struct {
	backend Backend
	wallet  WalletProvider
	ctxSt   *aictx.Store
	log     *zap.Logger
	opts    Options

	// onConfirmed runs once per confirmed transaction, after the context
	// sync. Used by the server wiring to refresh the wallet balance.
	onConfirmed func(Record)

	mu      sync.Mutex
	byID    map[string]*Record
	byHash  map[string]*Record
	waiters map[string]chan struct{}
}

func NewMonitor(backend Backend, wallet WalletProvider, ctxStore *aictx.Store, opts Options, log *zap.Logger) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		backend: backend,
		wallet:  wallet,
		ctxSt:   ctxStore,
		log:     log,
		opts:    opts,
		byID:    make(map[string]*Record),
		byHash:  make(map[string]*Record),
		waiters: make(map[string]chan struct{}),
	}
}

// OnConfirmed registers the confirmation side-effect hook.
func (m *Monitor) OnConfirmed(fn func(Record)) { m.onConfirmed = fn }

// Submit validates, signs and broadcasts a transaction. The record exists
// in Pending before the hash is known; once broadcast succeeds the record
// carries the hash and moves to Confirming, and a bounded monitor goroutine
// takes over. The returned context cancel from Watch stops that goroutine.
func (m *Monitor) Submit(ctx context.Context, req Request) (Record, error) {
	if m.wallet == nil || !m.wallet.State().IsConnected {
		return Record{}, cperr.New(cperr.CodeWalletDisconnected, "wallet is not connected")
	}
	if m.backend == nil {
		return Record{}, cperr.New(cperr.CodeUpstream, "no rpc backend available")
	}
	to := strings.TrimSpace(req.To)
	if !common.IsHexAddress(to) {
		return Record{}, cperr.New(cperr.CodeInvalidInput, "recipient is not a valid address")
	}
	if req.Value == nil {
		req.Value = big.NewInt(0)
	}
	if req.Value.Sign() < 0 {
		return Record{}, cperr.New(cperr.CodeInvalidInput, "value must be non-negative")
	}

	kind := req.Kind
	if kind == "" {
		kind = "transfer"
	}
	rec := &Record{
		ID:          ulid.Make().String(),
		Kind:        kind,
		Status:      model.TxPending,
		SubmittedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.byID[rec.ID] = rec
	m.mu.Unlock()
	m.syncContext(*rec)

	signed, err := m.buildAndSign(ctx, req, common.HexToAddress(to))
	if err != nil {
		m.fail(rec, err.Error())
		return m.snapshot(rec), err
	}
	if err := m.backend.SendTransaction(ctx, signed); err != nil {
		wrapped := cperr.Wrap(cperr.CodeTxRejected, "broadcast transaction", err)
		m.fail(rec, wrapped.Error())
		return m.snapshot(rec), wrapped
	}

	m.mu.Lock()
	rec.Hash = signed.Hash().Hex()
	m.transitionLocked(rec, model.TxConfirming, "")
	m.byHash[rec.Hash] = rec
	done := make(chan struct{})
	m.waiters[rec.Hash] = done
	m.mu.Unlock()
	m.syncContext(*rec)

	m.log.Info("transaction submitted",
		zap.String("kind", rec.Kind),
		zap.String("hash", rec.Hash))

	go m.watch(rec, done)
	return m.snapshot(rec), nil
}

func (m *Monitor) buildAndSign(ctx context.Context, req Request, to common.Address) (*types.Transaction, error) {
	sig := m.wallet.Signer()
	from := sig.Address()

	chainID, err := m.backend.ChainID(ctx)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeUpstream, "read chain id", err)
	}
	nonce, err := m.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeUpstream, "fetch nonce", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		msg := ethereum.CallMsg{From: from, To: &to, Value: req.Value, Data: req.Data}
		estimated, err := m.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, cperr.Wrap(cperr.CodeTxRejected, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * gasLimitMultiplier)
	}

	tipCap, err := m.backend.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := m.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeUpstream, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     req.Value,
		Data:      req.Data,
	})
	signed, err := sig.SignTx(chainID, tx)
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeTxRejected, "sign transaction", err)
	}
	return signed, nil
}

// watch polls for the receipt every PollInterval, at most MaxAttempts
// times. Exhausting the window leaves the record as-is: not failed, not
// retried.
func (m *Monitor) watch(rec *Record, done chan struct{}) {
	defer close(done)
	hash := common.HexToHash(rec.Hash)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < m.opts.MaxAttempts; attempt++ {
		<-ticker.C
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.PollInterval*2)
		receipt, err := m.backend.TransactionReceipt(ctx, hash)
		cancel()
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				m.log.Debug("receipt poll failed", zap.String("hash", rec.Hash), zap.Error(err))
			}
			continue
		}
		if receipt == nil {
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			m.confirm(rec)
		} else {
			m.fail(rec, "transaction reverted on-chain")
		}
		return
	}
	m.log.Warn("receipt window exhausted, leaving record in last state",
		zap.String("hash", rec.Hash),
		zap.String("status", string(m.snapshot(rec).Status)))
}

// Wait blocks until monitoring for the hash ends (receipt observed or
// window exhausted). Used by tests and the one-shot CLI path.
func (m *Monitor) Wait(hash string) {
	m.mu.Lock()
	done, ok := m.waiters[hash]
	m.mu.Unlock()
	if ok {
		<-done
	}
}

// Get looks a record up by transaction hash.
func (m *Monitor) Get(hash string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byHash[hash]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records lists every tracked record, newest first.
func (m *Monitor) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, *rec)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].SubmittedAt.After(out[i].SubmittedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// HasInFlight reports whether any record of the kind is still non-terminal.
// The approval gate uses this to refuse a second approval for the same
// (token, spender) while one is pending.
func (m *Monitor) HasInFlight(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byID {
		if rec.Kind == kind && !rec.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *Monitor) confirm(rec *Record) {
	m.mu.Lock()
	m.transitionLocked(rec, model.TxConfirmed, "")
	snap := *rec
	m.mu.Unlock()

	m.log.Info("transaction confirmed", zap.String("hash", snap.Hash))
	m.syncContext(snap)
	if m.onConfirmed != nil {
		m.onConfirmed(snap)
	}
}

func (m *Monitor) fail(rec *Record, msg string) {
	m.mu.Lock()
	m.transitionLocked(rec, model.TxFailed, msg)
	snap := *rec
	m.mu.Unlock()
	m.log.Warn("transaction failed", zap.String("id", snap.ID), zap.String("error", msg))
	m.syncContext(snap)
}

// transitionLocked enforces the lifecycle; illegal moves (backward, or out
// of a terminal state) are ignored rather than applied.
func (m *Monitor) transitionLocked(rec *Record, next model.TxStatus, errMsg string) {
	if !rec.Status.CanTransition(next) {
		return
	}
	rec.Status = next
	if errMsg != "" {
		rec.Error = errMsg
	}
}

func (m *Monitor) snapshot(rec *Record) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *rec
}

func (m *Monitor) syncContext(rec Record) {
	if m.ctxSt == nil {
		return
	}
	summary := rec.Summary()
	m.ctxSt.Update("txmon", aictx.Partial{LastTransaction: &summary})
}
