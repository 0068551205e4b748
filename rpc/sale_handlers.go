package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/rakshitdev007/remix-contracts/native/sale"
)

type setPaymentAssetParams struct {
	Caller    string `json:"caller"`
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	Enabled   bool   `json:"enabled"`
	Stable    bool   `json:"stable"`
	OracleRef string `json:"oracleRef,omitempty"`
}

type createSaleParams struct {
	Caller           string `json:"caller"`
	Type             string `json:"type"`
	RateUsd          string `json:"rateUsd"`
	TotalTokenAmount string `json:"totalTokenAmount"`
	MinBuyUsd        string `json:"minBuyUsd"`
	MaxBuyUsd        string `json:"maxBuyUsd"`
	Settlement       string `json:"settlement"`
	StartAt          int64  `json:"startAt"`
	EndAt            int64  `json:"endAt"`
}

type updateSaleTimeParams struct {
	Caller  string `json:"caller"`
	Type    string `json:"type"`
	StartAt int64  `json:"startAt"`
	EndAt   int64  `json:"endAt"`
}

type buyParams struct {
	Buyer    string `json:"buyer"`
	SaleType string `json:"saleType"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Stake    bool   `json:"stake,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

type claimParams struct {
	User      string `json:"user"`
	SaleType  string `json:"saleType"`
	IntoStake bool   `json:"intoStake,omitempty"`
}

type saleQueryParams struct {
	Type string `json:"type"`
}

type userSaleParams struct {
	User     string `json:"user"`
	SaleType string `json:"saleType"`
	Start    uint64 `json:"start,omitempty"`
	End      uint64 `json:"end,omitempty"`
}

type contributorsParams struct {
	SaleType string `json:"saleType"`
	Start    uint64 `json:"start,omitempty"`
	End      uint64 `json:"end,omitempty"`
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type creditBalanceParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"`
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func saleResultFrom(cfg *sale.SaleConfig) saleResult {
	return saleResult{
		Type:              cfg.Type,
		RateUsd:           bigString(cfg.RateUsd),
		TotalTokenAmount:  bigString(cfg.TotalTokenAmount),
		RemainingQuantity: bigString(cfg.RemainingQuantity),
		MinBuyUsd:         bigString(cfg.MinBuyUsd),
		MaxBuyUsd:         bigString(cfg.MaxBuyUsd),
		Settlement:        cfg.Settlement.String(),
		Status:            cfg.Status.String(),
		StartAt:           cfg.StartAt,
		EndAt:             cfg.EndAt,
	}
}

func (s *Server) handleSetPaymentAsset(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setPaymentAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	asset, err := s.engine.SetPaymentAsset(caller, &sale.PaymentAsset{
		Symbol:    params.Symbol,
		Decimals:  params.Decimals,
		Enabled:   params.Enabled,
		Stable:    params.Stable,
		OracleRef: params.OracleRef,
	})
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paymentAssetResult{
		Symbol:    asset.Symbol,
		Decimals:  asset.Decimals,
		Enabled:   asset.Enabled,
		Stable:    asset.Stable,
		OracleRef: asset.OracleRef,
	})
}

func (s *Server) handleGetPaymentAsset(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params struct {
		Symbol string `json:"symbol"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := s.engine.PaymentAsset(params.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paymentAssetResult{
		Symbol:    asset.Symbol,
		Decimals:  asset.Decimals,
		Enabled:   asset.Enabled,
		Stable:    asset.Stable,
		OracleRef: asset.OracleRef,
	})
}

func (s *Server) handleListPaymentAssets(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	symbols, err := s.engine.PaymentAssets()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, symbols)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params createSaleParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	rate, err := parseAmount(params.RateUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rateUsd", err.Error())
		return
	}
	total, err := parseAmount(params.TotalTokenAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid totalTokenAmount", err.Error())
		return
	}
	minUsd, err := parseNonNegative(params.MinBuyUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minBuyUsd", err.Error())
		return
	}
	maxUsd, err := parseAmount(params.MaxBuyUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxBuyUsd", err.Error())
		return
	}
	settlement := sale.SettleInstant
	if strings.EqualFold(strings.TrimSpace(params.Settlement), "deferred") {
		settlement = sale.SettleDeferred
	}
	created, err := s.engine.CreateSale(caller, &sale.SaleConfig{
		Type:             params.Type,
		RateUsd:          rate,
		TotalTokenAmount: total,
		MinBuyUsd:        minUsd,
		MaxBuyUsd:        maxUsd,
		Settlement:       settlement,
		StartAt:          params.StartAt,
		EndAt:            params.EndAt,
	})
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleResultFrom(created))
}

func (s *Server) handleUpdateSaleTime(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params updateSaleTimeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	updated, err := s.engine.UpdateSaleTime(caller, params.Type, params.StartAt, params.EndAt)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleResultFrom(updated))
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	cfg, err := s.engine.Sale(params.Type)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleResultFrom(cfg))
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	types, err := s.engine.Sales()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, types)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params buyParams
	if !decodeParams(w, req, &params) {
		return
	}
	buyer, err := decodeAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	var referrer [20]byte
	if strings.TrimSpace(params.Referrer) != "" {
		referrer, err = decodeAddress(params.Referrer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid referrer address", err.Error())
			return
		}
	}
	receipt, err := s.engine.Buy(&sale.PurchaseRequest{
		Buyer:    buyer,
		SaleType: params.SaleType,
		Asset:    params.Asset,
		Amount:   amount,
		Stake:    params.Stake,
		Referrer: referrer,
	})
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	usd, _ := new(big.Float).SetInt(receipt.UsdAmount).Float64()
	s.metrics.ObservePurchase(receipt.SaleType, params.Asset, usd)
	if receipt.Staked {
		s.metrics.ObserveStakeDeposit()
	}
	writeResult(w, req.ID, purchaseResult{
		SaleType:    receipt.SaleType,
		UsdAmount:   bigString(receipt.UsdAmount),
		TokenVolume: bigString(receipt.TokenVolume),
		Settlement:  receipt.Settlement.String(),
		Staked:      receipt.Staked,
		StakeIndex:  receipt.StakeIndex,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params claimParams
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := s.engine.Claim(user, params.SaleType, params.IntoStake)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveClaim(params.SaleType)
	if params.IntoStake {
		s.metrics.ObserveStakeDeposit()
	}
	writeResult(w, req.ID, map[string]interface{}{
		"amount": bigString(amount),
		"staked": params.IntoStake,
	})
}

func (s *Server) handleGetClaimable(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params userSaleParams
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	claim, err := s.engine.Claimable(user, params.SaleType)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimableResult{
		User:         params.User,
		SaleType:     params.SaleType,
		TotalAccrued: bigString(claim.TotalAccrued),
		TotalClaimed: bigString(claim.TotalClaimed),
		Outstanding:  bigString(claim.Outstanding()),
	})
}

func (s *Server) handleGetContributions(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params userSaleParams
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	start, end := params.Start, params.End
	if end == 0 {
		count, err := s.engine.ContributionCount(user, params.SaleType)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		end = count
	}
	records, err := s.engine.Contributions(user, params.SaleType, start, end)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]contributionResult, 0, len(records))
	for _, rec := range records {
		results = append(results, contributionResult{
			Asset:       rec.Asset,
			UsdAmount:   bigString(rec.UsdAmount),
			TokenVolume: bigString(rec.TokenVolume),
			Timestamp:   rec.Timestamp,
		})
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleGetContributorSummary(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params userSaleParams
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	summary, err := s.engine.ContributorSummary(user, params.SaleType)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	count, err := s.engine.ContributionCount(user, params.SaleType)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contributorSummaryResult{
		User:          params.User,
		SaleType:      params.SaleType,
		TotalUsd:      bigString(summary.TotalUsd),
		TotalVolume:   bigString(summary.TotalVolume),
		PurchaseCount: count,
	})
}

func (s *Server) handleGetContributors(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params contributorsParams
	if !decodeParams(w, req, &params) {
		return
	}
	start, end := params.Start, params.End
	if end == 0 {
		count, err := s.engine.ContributorCount(params.SaleType)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		end = count
	}
	addrs, err := s.engine.Contributors(params.SaleType, start, end)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	encoded := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		encoded = append(encoded, encodeAddress(addr))
	}
	writeResult(w, req.ID, encoded)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params transferOwnershipParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	newOwner, err := decodeAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid newOwner address", err.Error())
		return
	}
	if err := s.engine.TransferOwnership(caller, newOwner); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": params.NewOwner})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setPausedParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.engine.SetPaused(caller, params.Paused); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleCreditBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params creditBalanceParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	account, err := decodeAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.engine.CreditBalance(caller, account, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"account": params.Account,
		"amount":  amount.String(),
	})
}
