package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "aurum/native/common"
	"aurum/native/sale"
	"aurum/native/treasury"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// AuthTokenEnv names the environment variable holding the bearer token
	// required by privileged methods.
	AuthTokenEnv = "AURUM_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeQuotaExceeded  = -32002
	codeServerError    = -32000
)

// Server exposes the sale and treasury engines over JSON-RPC.
type Server struct {
	sale      *sale.Engine
	treasury  *treasury.Engine
	feeds     map[string]*sale.ManualFeed
	authToken string
	logger    *slog.Logger

	quotaMu       sync.Mutex
	purchaseQuota nativecommon.Quota
	quotaUsage    map[[20]byte]nativecommon.QuotaNow
	nowFn         func() int64
}

// NewServer wires the engines into a JSON-RPC server. The bearer token for
// privileged methods is read from AURUM_RPC_TOKEN.
func NewServer(saleEngine *sale.Engine, treasuryEngine *treasury.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sale:       saleEngine,
		treasury:   treasuryEngine,
		feeds:      make(map[string]*sale.ManualFeed),
		authToken:  strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		logger:     logger,
		quotaUsage: make(map[[20]byte]nativecommon.QuotaNow),
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetPurchaseQuota enables per-buyer throttling of purchase submissions. A
// zero quota disables throttling.
func (s *Server) SetPurchaseQuota(q nativecommon.Quota) {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	s.purchaseQuota = q
	s.quotaUsage = make(map[[20]byte]nativecommon.QuotaNow)
}

// checkPurchaseQuota consumes one submission slot for the buyer. Submissions
// count against the quota whether or not the purchase later succeeds.
func (s *Server) checkPurchaseQuota(buyer [20]byte, gptAmount *big.Int) error {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	if !s.purchaseQuota.Enabled() {
		return nil
	}
	var usage uint64
	if s.purchaseQuota.MaxGPTPerEpoch > 0 && gptAmount != nil {
		if !gptAmount.IsUint64() {
			return nativecommon.ErrQuotaGPTCapExceeded
		}
		usage = gptAmount.Uint64()
	}
	epoch := s.purchaseQuota.EpochFor(s.nowFn())
	next, err := nativecommon.CheckQuota(s.purchaseQuota, epoch, s.quotaUsage[buyer], 1, usage)
	if err != nil {
		return err
	}
	s.quotaUsage[buyer] = next
	return nil
}

// RegisterManualFeed exposes a manually driven price feed through the
// sale_setFeedPrice method so operators can push observations.
func (s *Server) RegisterManualFeed(ref string, feed *sale.ManualFeed) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || feed == nil {
		return
	}
	s.feeds[trimmed] = feed
}

// Handler returns the HTTP handler serving the RPC endpoint and Prometheus
// metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the RPC endpoint on the given address until the listener
// fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "rpc auth token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "sale_createRound":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleCreateRound(w, r, req)
	case "sale_setStage":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetStage(w, r, req)
	case "sale_setWhitelisted":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetWhitelisted(w, r, req)
	case "sale_setPaymentToken":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetPaymentToken(w, r, req)
	case "sale_removePaymentToken":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleRemovePaymentToken(w, r, req)
	case "sale_setRelayer":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetRelayer(w, r, req)
	case "sale_pause", "sale_unpause":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetPaused(w, r, req, req.Method == "sale_pause")
	case "sale_setFeedPrice":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSaleSetFeedPrice(w, r, req)
	case "sale_purchasePresale":
		s.handleSalePurchase(w, r, req, true)
	case "sale_purchasePublic":
		s.handleSalePurchase(w, r, req, false)
	case "sale_getRound":
		s.handleSaleGetRound(w, r, req)
	case "sale_getNonce":
		s.handleSaleGetNonce(w, r, req)
	case "sale_isWhitelisted":
		s.handleSaleIsWhitelisted(w, r, req)
	case "sale_quote":
		s.handleSaleQuote(w, r, req)
	case "treasury_queueWithdrawal":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleTreasuryQueueWithdrawal(w, r, req)
	case "treasury_executeWithdrawal":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleTreasuryExecuteWithdrawal(w, r, req)
	case "treasury_cancelWithdrawal":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleTreasuryCancelWithdrawal(w, r, req)
	case "treasury_getWithdrawal":
		s.handleTreasuryGetWithdrawal(w, r, req)
	case "treasury_getBalance":
		s.handleTreasuryGetBalance(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}
