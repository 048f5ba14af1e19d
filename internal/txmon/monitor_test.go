package txmon

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defi-copilot/copilotd/internal/aictx"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/model"
	"github.com/defi-copilot/copilotd/internal/signer"
)

// testKey is a throwaway key used only to produce valid signatures in tests.
const testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

type fakeBackend struct {
	mu            sync.Mutex
	receiptStatus uint64
	notFoundPolls int
	neverFound    bool
	sendErr       error
	sent          []*types.Transaction
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(11155111), nil }
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}
func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1_000_000_000)}, nil
}
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.neverFound {
		return nil, ethereum.NotFound
	}
	if f.notFoundPolls > 0 {
		f.notFoundPolls--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: hash}, nil
}

type fakeWallet struct {
	connected bool
	sig       signer.Signer
}

func (f *fakeWallet) State() model.WalletState {
	return model.WalletState{IsConnected: f.connected, Address: "0xabc"}
}
func (f *fakeWallet) Signer() signer.Signer { return f.sig }

func newTestMonitor(t *testing.T, backend Backend, store *aictx.Store) *Monitor {
	t.Helper()
	sig, err := signer.NewLocalSignerFromHex(testKey)
	if err != nil {
		t.Fatalf("test signer: %v", err)
	}
	return NewMonitor(backend, &fakeWallet{connected: true, sig: sig}, store, Options{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  10,
	}, nil)
}

func TestSubmitConfirmsOnSuccessfulReceipt(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful, notFoundPolls: 2}
	store := aictx.NewStore()
	m := newTestMonitor(t, backend, store)

	rec, err := m.Submit(context.Background(), Request{
		Kind: "send",
		To:   "0x00000000000000000000000000000000000000BB",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Status != model.TxConfirming || rec.Hash == "" {
		t.Fatalf("after broadcast: status=%s hash=%q", rec.Status, rec.Hash)
	}

	m.Wait(rec.Hash)
	final, ok := m.Get(rec.Hash)
	if !ok || final.Status != model.TxConfirmed {
		t.Fatalf("final status = %s, want confirmed", final.Status)
	}

	snap := store.Snapshot()
	if snap.LastTransaction == nil || snap.LastTransaction.Status != model.TxConfirmed {
		t.Fatal("confirmation not mirrored into AI context")
	}
}

func TestSubmitFailsOnRevertedReceipt(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusFailed}
	m := newTestMonitor(t, backend, nil)

	rec, err := m.Submit(context.Background(), Request{
		To: "0x00000000000000000000000000000000000000BB",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait(rec.Hash)

	final, _ := m.Get(rec.Hash)
	if final.Status != model.TxFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if final.Error == "" {
		t.Fatal("failed record must carry an error message")
	}
}

func TestBroadcastRejectionFailsRecord(t *testing.T) {
	backend := &fakeBackend{sendErr: context.DeadlineExceeded}
	m := newTestMonitor(t, backend, nil)

	_, err := m.Submit(context.Background(), Request{
		To: "0x00000000000000000000000000000000000000BB",
	})
	if cperr.CodeOf(err) != cperr.CodeTxRejected {
		t.Fatalf("error code = %d, want tx rejected", cperr.CodeOf(err))
	}

	records := m.Records()
	if len(records) != 1 || records[0].Status != model.TxFailed {
		t.Fatalf("rejected submission record = %+v", records)
	}
}

func TestPollWindowIsBounded(t *testing.T) {
	backend := &fakeBackend{neverFound: true}
	m := newTestMonitor(t, backend, nil)

	rec, err := m.Submit(context.Background(), Request{
		Kind: "send",
		To:   "0x00000000000000000000000000000000000000BB",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan struct{})
	go func() { m.Wait(rec.Hash); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after max attempts")
	}

	// Exhausted window leaves the record where it was, still in flight.
	final, _ := m.Get(rec.Hash)
	if final.Status != model.TxConfirming {
		t.Fatalf("status after exhausted window = %s, want confirming", final.Status)
	}
	if !m.HasInFlight("send") {
		t.Fatal("unresolved record must still count as in flight")
	}
}

func TestSubmitRequiresConnectedWallet(t *testing.T) {
	sig, _ := signer.NewLocalSignerFromHex(testKey)
	m := NewMonitor(&fakeBackend{}, &fakeWallet{connected: false, sig: sig}, nil, Options{}, nil)

	_, err := m.Submit(context.Background(), Request{To: "0x00000000000000000000000000000000000000BB"})
	if cperr.CodeOf(err) != cperr.CodeWalletDisconnected {
		t.Fatalf("error code = %d, want wallet disconnected", cperr.CodeOf(err))
	}
}

func TestSubmitRejectsBadAddress(t *testing.T) {
	m := newTestMonitor(t, &fakeBackend{}, nil)
	_, err := m.Submit(context.Background(), Request{To: "not-an-address"})
	if cperr.CodeOf(err) != cperr.CodeInvalidInput {
		t.Fatalf("error code = %d, want invalid input", cperr.CodeOf(err))
	}
}

func TestSubmittedTxUsesDynamicFees(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful}
	m := newTestMonitor(t, backend, nil)

	rec, err := m.Submit(context.Background(), Request{
		To:    "0x00000000000000000000000000000000000000BB",
		Value: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait(rec.Hash)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Type() != types.DynamicFeeTxType {
		t.Fatalf("tx type = %d, want dynamic fee", tx.Type())
	}
	// feeCap = 2*baseFee + tip = 3 gwei with the fake backend's numbers.
	if tx.GasFeeCap().Cmp(big.NewInt(3_000_000_000)) != 0 {
		t.Fatalf("fee cap = %s, want 3 gwei", tx.GasFeeCap())
	}
	// Estimated 21000 padded by the safety multiplier.
	if tx.Gas() != 25200 {
		t.Fatalf("gas limit = %d, want 25200", tx.Gas())
	}
}
