package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"aurum/native/treasury"
	"aurum/observability"
)

func (s *Server) handleTreasuryQueueWithdrawal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected withdrawal payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	token, err := parseAddress(payload.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token", err.Error())
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	request, err := s.treasury.QueueWithdrawal(caller, token, amount)
	if err != nil {
		writeTreasuryError(w, req, err)
		return
	}
	if request == nil {
		observability.Treasury().RecordWithdrawal("immediate")
		writeResult(w, req.ID, &WithdrawalResult{Executed: true})
		return
	}
	observability.Treasury().RecordWithdrawal("queued")
	writeResult(w, req.ID, withdrawalResult(request))
}

func (s *Server) handleTreasuryExecuteWithdrawal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	caller, id, ok := s.parseWithdrawalRef(w, req)
	if !ok {
		return
	}
	if err := s.treasury.ExecuteWithdrawal(caller, id); err != nil {
		writeTreasuryError(w, req, err)
		return
	}
	observability.Treasury().RecordWithdrawal("executed")
	writeResult(w, req.ID, true)
}

func (s *Server) handleTreasuryCancelWithdrawal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	caller, id, ok := s.parseWithdrawalRef(w, req)
	if !ok {
		return
	}
	if err := s.treasury.CancelWithdrawal(caller, id); err != nil {
		writeTreasuryError(w, req, err)
		return
	}
	observability.Treasury().RecordWithdrawal("cancelled")
	writeResult(w, req.ID, true)
}

func (s *Server) parseWithdrawalRef(w http.ResponseWriter, req *RPCRequest) ([20]byte, [32]byte, bool) {
	var caller [20]byte
	var id [32]byte
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected withdrawal reference", nil)
		return caller, id, false
	}
	var payload struct {
		Caller string `json:"caller"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return caller, id, false
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return caller, id, false
	}
	id, err = parseRequestID(payload.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid withdrawal id", err.Error())
		return caller, id, false
	}
	return caller, id, true
}

func (s *Server) handleTreasuryGetWithdrawal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected withdrawal id", nil)
		return
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	id, err := parseRequestID(payload.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid withdrawal id", err.Error())
		return
	}
	request, err := s.treasury.Withdrawal(id)
	if err != nil {
		writeTreasuryError(w, req, err)
		return
	}
	writeResult(w, req.ID, withdrawalResult(request))
}

func (s *Server) handleTreasuryGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected token", nil)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	token, err := parseAddress(payload.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token", err.Error())
		return
	}
	balance, err := s.treasury.TreasuryBalance(token)
	if err != nil {
		writeTreasuryError(w, req, err)
		return
	}
	writeResult(w, req.ID, bigString(balance))
}

func writeTreasuryError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, treasury.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, treasury.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrTokenNotAccepted),
		errors.Is(err, treasury.ErrInsufficientTreasury),
		errors.Is(err, treasury.ErrWithdrawalDelayNotMet),
		errors.Is(err, treasury.ErrWithdrawalAlreadyExecuted),
		errors.Is(err, treasury.ErrWithdrawalAlreadyCancelled):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
	}
}
