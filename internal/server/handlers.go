package server

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/aictx"
	cperr "github.com/defi-copilot/copilotd/internal/errors"
	"github.com/defi-copilot/copilotd/internal/sim"
	"github.com/defi-copilot/copilotd/internal/token"
	"github.com/defi-copilot/copilotd/internal/txmon"
)

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat streams the exchange as newline-delimited JSON events,
// flushing after each one so the client renders words as they arrive.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	events, err := s.deps.Chat.Send(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, cperr.New(cperr.CodeInternal, "response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for event := range events {
		if err := enc.Encode(event); err != nil {
			s.log.Debug("chat stream write failed, client gone", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.deps.Chat.History()})
}

func (s *Server) handleWalletState(w http.ResponseWriter, r *http.Request) {
	s.deps.Wallet.RefreshBalance(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Wallet.State())
}

func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Wallet.Connect(r.Context()) {
		s.writeError(w, cperr.New(cperr.CodeWalletDisconnected, "wallet connection failed, check signer and RPC settings"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Wallet.State())
}

func (s *Server) handleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	s.deps.Wallet.Disconnect()
	writeJSON(w, http.StatusOK, s.deps.Wallet.State())
}

type quoteRequest struct {
	FromToken   string  `json:"fromToken"`
	ToToken     string  `json:"toToken"`
	Amount      string  `json:"amount"`
	SlippagePct float64 `json:"slippagePct,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	q, err := s.deps.Quotes.GetQuote(r.Context(), req.FromToken, req.ToToken, req.Amount, req.SlippagePct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if q == nil {
		// Zero amount: nothing to quote, nothing wrong either.
		writeJSON(w, http.StatusOK, map[string]any{"quote": nil})
		return
	}

	mirrored := *q
	s.quoteMirror.Trigger("quote", func() {
		s.deps.Context.Update("quote", aictx.Partial{LastQuote: &mirrored})
	})

	writeJSON(w, http.StatusOK, map[string]any{"quote": q})
}

func (s *Server) handleGas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Gas.Report(r.Context()))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req sim.Request
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.deps.Sim.Simulate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type approveRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	tok, known := token.Resolve(s.cfg.TargetChainID, req.Token)
	if !known {
		s.writeError(w, cperr.New(cperr.CodeInvalidInput, "unknown token symbol"))
		return
	}
	amount, err := token.ParseAmount(req.Amount, tok.Decimals)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.deps.Approval.Approve(r.Context(), tok, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

type swapRequest struct {
	FromToken   string  `json:"fromToken"`
	ToToken     string  `json:"toToken"`
	Amount      string  `json:"amount"`
	SlippagePct float64 `json:"slippagePct,omitempty"`
}

// handleSwap quotes, gates on allowance, builds and submits in one call.
// The allowance check runs server-side so a client cannot skip it.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	state := s.deps.Wallet.State()
	if !state.IsConnected {
		s.writeError(w, cperr.New(cperr.CodeWalletDisconnected, "connect a wallet before swapping"))
		return
	}

	q, err := s.deps.Quotes.GetQuote(r.Context(), req.FromToken, req.ToToken, req.Amount, req.SlippagePct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if q == nil {
		s.writeError(w, cperr.New(cperr.CodeInvalidInput, "amount is required"))
		return
	}

	owner := common.HexToAddress(state.Address)
	from, _ := token.Resolve(s.cfg.TargetChainID, q.FromToken)
	amountIn, err := token.ParseAmount(q.FromAmount, from.Decimals)
	if err != nil {
		s.writeError(w, err)
		return
	}

	needs, err := s.deps.Approval.NeedsApproval(r.Context(), owner, from, amountIn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if needs {
		s.writeError(w, cperr.New(cperr.CodeApprovalRequired, "token allowance too low, approve before swapping"))
		return
	}

	txReq, err := s.deps.Swaps.Build(q, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.deps.Txs.Submit(r.Context(), txReq)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"quote": q, "transaction": rec})
}

type txSendRequest struct {
	Kind  string `json:"kind,omitempty"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

func (s *Server) handleTxSend(w http.ResponseWriter, r *http.Request) {
	var req txSendRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	monReq, err := buildTxRequest(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.deps.Txs.Submit(r.Context(), monReq)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func buildTxRequest(req txSendRequest) (txmon.Request, error) {
	kind := req.Kind
	if kind == "" {
		kind = "send"
	}
	out := txmon.Request{Kind: kind, To: req.To}

	if req.Value != "" {
		value, err := parseWei(req.Value)
		if err != nil {
			return txmon.Request{}, err
		}
		out.Value = value
	}
	if req.Data != "" {
		data, err := parseHexData(req.Data)
		if err != nil {
			return txmon.Request{}, err
		}
		out.Data = data
	}
	return out, nil
}

func parseWei(raw string) (*big.Int, error) {
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		base = 16
		raw = raw[2:]
	}
	value, ok := new(big.Int).SetString(raw, base)
	if !ok || value.Sign() < 0 {
		return nil, cperr.New(cperr.CodeInvalidInput, "invalid wei value")
	}
	return value, nil
}

func parseHexData(raw string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, cperr.Wrap(cperr.CodeInvalidInput, "invalid calldata hex", err)
	}
	return data, nil
}

func (s *Server) handleTxList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"transactions": s.deps.Txs.Records()})
}

func (s *Server) handleTxGet(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	rec, ok := s.deps.Txs.Get(hash)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown transaction hash", Code: cperr.CodeInvalidInput})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"context":   s.deps.Context.Snapshot(),
		"changeLog": s.deps.Context.ChangeLog(),
	})
}
