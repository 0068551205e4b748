package rpc

import (
	"net/http"
	"strings"
)

type referralSetPercentParams struct {
	Caller  string `json:"caller"`
	Percent uint64 `json:"percent"`
}

type referralFundParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type referralHandlerParams struct {
	Caller  string `json:"caller"`
	Handler string `json:"handler"`
}

type referralAddParams struct {
	Caller   string `json:"caller"`
	User     string `json:"user"`
	Referrer string `json:"referrer"`
}

type referralClaimParams struct {
	Referrer string `json:"referrer"`
	SaleType string `json:"saleType"`
}

type referralBalanceParams struct {
	Referrer string `json:"referrer"`
	SaleType string `json:"saleType,omitempty"`
}

func (s *Server) handleReferralSetPercent(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralSetPercentParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.engine.SetReferralPercent(caller, params.Percent); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"percent": params.Percent})
}

func (s *Server) handleReferralFundAllocation(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralFundParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.engine.FundReferralAllocation(caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	remaining, distributed, err := s.engine.ReferralAllocation()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"remaining":   bigString(remaining),
		"distributed": bigString(distributed),
	})
}

func (s *Server) handleReferralAddHandler(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralHandlerParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	handler, err := decodeAddress(params.Handler)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid handler address", err.Error())
		return
	}
	if err := s.engine.AddReferralHandler(caller, handler); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"handler": true})
}

func (s *Server) handleReferralRemoveHandler(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralHandlerParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	handler, err := decodeAddress(params.Handler)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid handler address", err.Error())
		return
	}
	if err := s.engine.RemoveReferralHandler(caller, handler); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"handler": false})
}

func (s *Server) handleReferralAdd(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralAddParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	referrer, err := decodeAddress(params.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid referrer address", err.Error())
		return
	}
	linked, err := s.engine.AddReferral(caller, user, referrer)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"linked": linked})
}

func (s *Server) handleReferralClaimPending(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralClaimParams
	if !decodeParams(w, req, &params) {
		return
	}
	referrer, err := decodeAddress(params.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid referrer address", err.Error())
		return
	}
	amount, err := s.engine.ClaimReferralPending(referrer, params.SaleType)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": bigString(amount)})
}

func (s *Server) handleReferralGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params referralBalanceParams
	if !decodeParams(w, req, &params) {
		return
	}
	referrer, err := decodeAddress(params.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid referrer address", err.Error())
		return
	}
	settled, err := s.engine.ReferralSettledTotal(referrer)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := referralBalanceResult{
		Referrer:     params.Referrer,
		SettledTotal: bigString(settled),
		Pending:      "0",
	}
	if strings.TrimSpace(params.SaleType) != "" {
		pending, err := s.engine.ReferralPendingBalance(referrer, params.SaleType)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		result.SaleType = params.SaleType
		result.Pending = bigString(pending)
	}
	writeResult(w, req.ID, result)
}
