package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	cperr "github.com/defi-copilot/copilotd/internal/errors"
)

type errorBody struct {
	Error string     `json:"error"`
	Code  cperr.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := cperr.CodeOf(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err), zap.Int("code", int(code)))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func httpStatus(code cperr.Code) int {
	switch code {
	case cperr.CodeInvalidInput, cperr.CodeUsage:
		return http.StatusBadRequest
	case cperr.CodeAuth:
		return http.StatusUnauthorized
	case cperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case cperr.CodeUpstream:
		return http.StatusBadGateway
	case cperr.CodeUnsupported, cperr.CodeTxRejected:
		return http.StatusUnprocessableEntity
	case cperr.CodeApprovalRequired, cperr.CodeWalletDisconnected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return cperr.Wrap(cperr.CodeInvalidInput, "decode request body", err)
	}
	return nil
}
