package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"aurum/native/sale"
	"aurum/observability"
)

func (s *Server) handleSaleCreateRound(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected round payload", nil)
		return
	}
	var payload struct {
		Caller    string `json:"caller"`
		MaxTokens string `json:"maxTokens"`
		StartTime int64  `json:"startTime"`
		EndTime   int64  `json:"endTime"`
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
	maxTokens, err := parseAmount(payload.MaxTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxTokens", err.Error())
		return
	}
	round, err := s.sale.CreateRound(caller, maxTokens, payload.StartTime, payload.EndTime)
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleSaleSetStage(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected stage payload", nil)
		return
	}
	var payload struct {
		Caller  string `json:"caller"`
		RoundID uint64 `json:"roundId"`
		Stage   string `json:"stage"`
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
	stage, ok := sale.ParseStage(strings.TrimSpace(payload.Stage))
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown stage", payload.Stage)
		return
	}
	if err := s.sale.SetStage(caller, payload.RoundID, stage); err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleSetWhitelisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected whitelist payload", nil)
		return
	}
	var payload struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Allowed bool   `json:"allowed"`
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
	account, err := parseAddress(payload.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return
	}
	if err := s.sale.SetWhitelisted(caller, account, payload.Allowed); err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleSetPaymentToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected token payload", nil)
		return
	}
	var payload struct {
		Caller   string `json:"caller"`
		Token    string `json:"token"`
		Accepted bool   `json:"accepted"`
		FeedRef  string `json:"feedRef"`
		Decimals uint8  `json:"decimals"`
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
	cfg := sale.TokenConfig{Accepted: payload.Accepted, FeedRef: payload.FeedRef, Decimals: payload.Decimals}
	if err := s.sale.SetPaymentToken(caller, token, cfg); err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleRemovePaymentToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected token payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
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
	if err := s.sale.RemovePaymentToken(caller, token); err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleSetRelayer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected relayer payload", nil)
		return
	}
	var payload struct {
		Caller  string `json:"caller"`
		Relayer string `json:"relayer"`
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
	relayer, err := parseAddress(payload.Relayer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid relayer", err.Error())
		return
	}
	if err := s.sale.SetRelayer(caller, relayer); err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest, paused bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected caller payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
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
	if paused {
		err = s.sale.Pause(caller)
	} else {
		err = s.sale.Unpause(caller)
	}
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleSetFeedPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected feed payload", nil)
		return
	}
	var payload struct {
		FeedRef   string `json:"feedRef"`
		Answer    string `json:"answer"`
		UpdatedAt int64  `json:"updatedAt"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	feed, ok := s.feeds[strings.TrimSpace(payload.FeedRef)]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "unknown feed", payload.FeedRef)
		return
	}
	answer, err := parseAmount(payload.Answer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid answer", err.Error())
		return
	}
	updatedAt := payload.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}
	feed.Set(answer, updatedAt)
	writeResult(w, req.ID, true)
}

// orderPayload is the wire form of a dual-signed purchase order.
type orderPayload struct {
	Caller           string `json:"caller"`
	RoundID          uint64 `json:"roundId"`
	Buyer            string `json:"buyer"`
	GPTAmount        string `json:"gptAmount"`
	Nonce            uint64 `json:"nonce"`
	Expiry           int64  `json:"expiry"`
	PaymentToken     string `json:"paymentToken"`
	UserSignature    string `json:"userSignature"`
	RelayerSignature string `json:"relayerSignature"`
}

func (p *orderPayload) order() (*sale.Order, [20]byte, error) {
	caller, err := parseAddress(p.Caller)
	if err != nil {
		return nil, caller, err
	}
	buyer, err := parseAddress(p.Buyer)
	if err != nil {
		return nil, caller, err
	}
	amount, err := parseAmount(p.GPTAmount)
	if err != nil {
		return nil, caller, err
	}
	token, err := parseAddress(p.PaymentToken)
	if err != nil {
		return nil, caller, err
	}
	userSig, err := parseHexBytes(p.UserSignature)
	if err != nil {
		return nil, caller, err
	}
	relayerSig, err := parseHexBytes(p.RelayerSignature)
	if err != nil {
		return nil, caller, err
	}
	order := &sale.Order{
		RoundID:          p.RoundID,
		Buyer:            buyer,
		GPTAmount:        amount,
		Nonce:            p.Nonce,
		Expiry:           p.Expiry,
		PaymentToken:     token,
		UserSignature:    userSig,
		RelayerSignature: relayerSig,
	}
	return order, caller, nil
}

func (s *Server) handleSalePurchase(w http.ResponseWriter, _ *http.Request, req *RPCRequest, presale bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected order payload", nil)
		return
	}
	var payload orderPayload
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	order, caller, err := payload.order()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid order", err.Error())
		return
	}
	path := "public"
	if presale {
		path = "presale"
	}
	if err := s.checkPurchaseQuota(order.Buyer, order.GPTAmount); err != nil {
		observability.Sale().RecordPurchaseError(path, "quota")
		writeError(w, http.StatusTooManyRequests, req.ID, codeQuotaExceeded, err.Error(), nil)
		return
	}
	started := time.Now()
	var receipt *sale.Receipt
	if presale {
		receipt, err = s.sale.PurchasePresale(caller, order)
	} else {
		receipt, err = s.sale.PurchasePublic(caller, order)
	}
	if err != nil {
		observability.Sale().RecordPurchaseError(path, purchaseErrorReason(err))
		writeSaleError(w, req, err)
		return
	}
	observability.Sale().RecordPurchase(path, time.Since(started))
	writeResult(w, req.ID, receiptResult(receipt))
}

func (s *Server) handleSaleGetRound(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected round id", nil)
		return
	}
	var payload struct {
		RoundID uint64 `json:"roundId"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	round, err := s.sale.Round(payload.RoundID)
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, roundResult(round))
}

func (s *Server) handleSaleGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	nonce, err := s.sale.Nonce(addr)
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, nonce)
}

func (s *Server) handleSaleIsWhitelisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	listed, err := s.sale.IsWhitelisted(addr)
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, listed)
}

func (s *Server) handleSaleQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected quote payload", nil)
		return
	}
	var payload struct {
		Token     string `json:"token"`
		GPTAmount string `json:"gptAmount"`
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
	amount, err := parseAmount(payload.GPTAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid gptAmount", err.Error())
		return
	}
	payment, err := s.sale.QuotePayment(token, amount)
	if err != nil {
		writeSaleError(w, req, err)
		return
	}
	writeResult(w, req.ID, bigString(payment))
}

func purchaseErrorReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrNonceMismatch):
		return "nonce_mismatch"
	case errors.Is(err, sale.ErrInvalidUserSignature), errors.Is(err, sale.ErrInvalidRelayerSignature), errors.Is(err, sale.ErrInvalidSignatureLength):
		return "invalid_signature"
	case errors.Is(err, sale.ErrStalePrice), errors.Is(err, sale.ErrInvalidPrice):
		return "price"
	case errors.Is(err, sale.ErrWrongStage), errors.Is(err, sale.ErrRoundNotActive):
		return "stage"
	case errors.Is(err, sale.ErrExceedMaxAllocation):
		return "allocation"
	case errors.Is(err, sale.ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, sale.ErrOrderExpired):
		return "expired"
	default:
		return "other"
	}
}

func writeSaleError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, sale.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, sale.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrInvalidTimeRange),
		errors.Is(err, sale.ErrInvalidUserSignature),
		errors.Is(err, sale.ErrInvalidRelayerSignature),
		errors.Is(err, sale.ErrInvalidSignatureLength),
		errors.Is(err, sale.ErrNonceMismatch),
		errors.Is(err, sale.ErrOrderExpired),
		errors.Is(err, sale.ErrCallerNotBuyer),
		errors.Is(err, sale.ErrNotWhitelisted),
		errors.Is(err, sale.ErrTokenNotAccepted),
		errors.Is(err, sale.ErrWrongStage),
		errors.Is(err, sale.ErrStageUnchanged),
		errors.Is(err, sale.ErrRoundNotStarted),
		errors.Is(err, sale.ErrRoundAlreadyEnded),
		errors.Is(err, sale.ErrRoundNotActive),
		errors.Is(err, sale.ErrSaleEnded),
		errors.Is(err, sale.ErrExceedMaxAllocation),
		errors.Is(err, sale.ErrInsufficientBalance),
		errors.Is(err, sale.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
	}
}
