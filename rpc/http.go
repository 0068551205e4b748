package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rakshitdev007/remix-contracts/native/common"
	"github.com/rakshitdev007/remix-contracts/native/referral"
	"github.com/rakshitdev007/remix-contracts/native/sale"
	"github.com/rakshitdev007/remix-contracts/native/stake"
	"github.com/rakshitdev007/remix-contracts/observability/logging"
	"github.com/rakshitdev007/remix-contracts/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeModulePaused   = -32021
)

// ServerConfig carries the operational knobs for the JSON-RPC server.
type ServerConfig struct {
	AuthToken string
	RateLimit int
	RateBurst int
	Logger    *slog.Logger
}

// Server exposes the ledger engine over JSON-RPC 2.0.
type Server struct {
	engine    *sale.Engine
	authToken string
	limit     rate.Limit
	burst     int
	log       *slog.Logger
	metrics   *metrics.LedgerMetrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	httpSrv *http.Server
}

// NewServer wires a server around an initialized engine.
func NewServer(engine *sale.Engine, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = cfg.RateLimit
	}
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limit:     limit,
		burst:     burst,
		log:       logger.With("component", "rpc"),
		metrics:   metrics.Ledger(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Start serves JSON-RPC on addr until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("json-rpc server listening", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) limiterFor(source string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[source] = limiter
	}
	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	w = sw
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)

	method := "unknown"
	defer func() {
		s.metrics.ObserveRPC(method, sw.status, time.Since(start))
	}()

	if !s.limiterFor(clientIP(r)).Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
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
	method = req.Method
	s.log.Debug("rpc request", "method", method, "requestId", requestID)

	switch req.Method {
	case "ico_setPaymentAsset":
		s.authenticated(w, r, req, s.handleSetPaymentAsset)
	case "ico_getPaymentAsset":
		s.handleGetPaymentAsset(w, r, req)
	case "ico_listPaymentAssets":
		s.handleListPaymentAssets(w, r, req)
	case "ico_createSale":
		s.authenticated(w, r, req, s.handleCreateSale)
	case "ico_updateSaleTime":
		s.authenticated(w, r, req, s.handleUpdateSaleTime)
	case "ico_getSale":
		s.handleGetSale(w, r, req)
	case "ico_listSales":
		s.handleListSales(w, r, req)
	case "ico_buy":
		s.authenticated(w, r, req, s.handleBuy)
	case "ico_claim":
		s.authenticated(w, r, req, s.handleClaim)
	case "ico_getClaimable":
		s.handleGetClaimable(w, r, req)
	case "ico_getContributions":
		s.handleGetContributions(w, r, req)
	case "ico_getContributorSummary":
		s.handleGetContributorSummary(w, r, req)
	case "ico_getContributors":
		s.handleGetContributors(w, r, req)
	case "ico_transferOwnership":
		s.authenticated(w, r, req, s.handleTransferOwnership)
	case "ico_creditBalance":
		s.authenticated(w, r, req, s.handleCreditBalance)
	case "ico_setPaused":
		s.authenticated(w, r, req, s.handleSetPaused)
	case "referral_setPercent":
		s.authenticated(w, r, req, s.handleReferralSetPercent)
	case "referral_fundAllocation":
		s.authenticated(w, r, req, s.handleReferralFundAllocation)
	case "referral_addHandler":
		s.authenticated(w, r, req, s.handleReferralAddHandler)
	case "referral_removeHandler":
		s.authenticated(w, r, req, s.handleReferralRemoveHandler)
	case "referral_add":
		s.authenticated(w, r, req, s.handleReferralAdd)
	case "referral_claimPending":
		s.authenticated(w, r, req, s.handleReferralClaimPending)
	case "referral_getBalance":
		s.handleReferralGetBalance(w, r, req)
	case "stake_setParams":
		s.authenticated(w, r, req, s.handleStakeSetParams)
	case "stake_pause":
		s.authenticated(w, r, req, s.handleStakePause)
	case "stake_deposit":
		s.authenticated(w, r, req, s.handleStakeDeposit)
	case "stake_claimReward":
		s.authenticated(w, r, req, s.handleStakeClaimReward)
	case "stake_unstake":
		s.authenticated(w, r, req, s.handleStakeUnstake)
	case "stake_positions":
		s.handleStakePositions(w, r, req)
	case "stake_withdrawExcess":
		s.authenticated(w, r, req, s.handleStakeWithdrawExcess)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) authenticated(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		s.log.Warn("rpc auth rejected",
			"method", req.Method,
			"reason", authErr.Message,
			logging.MaskField("authorization", r.Header.Get("Authorization")),
		)
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// writeEngineError maps domain sentinels onto JSON-RPC error codes so clients
// can branch without string matching.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrNotAuthorized), errors.Is(err, referral.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, "caller not authorized", err.Error())
	case errors.Is(err, stake.ErrStakingPaused), errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, "module paused", err.Error())
	case errors.Is(err, common.ErrReentrantCall):
		writeError(w, http.StatusConflict, id, codeServerError, "operation already in flight", err.Error())
	case errors.Is(err, sale.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, "engine not initialized", err.Error())
	default:
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "operation rejected", err.Error())
	}
}
