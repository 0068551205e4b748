package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// decodeAddress parses a 0x-prefixed (or bare) 40-character hex address.
func decodeAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("address is required")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address")
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes", len(addr))
	}
	copy(addr[:], raw)
	return addr, nil
}

func encodeAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// parseAmount decodes a positive base-10 integer amount.
func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

// parseNonNegative decodes a base-10 integer amount allowing zero.
func parseNonNegative(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount")
	}
	return value, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type saleResult struct {
	Type              string `json:"type"`
	RateUsd           string `json:"rateUsd"`
	TotalTokenAmount  string `json:"totalTokenAmount"`
	RemainingQuantity string `json:"remainingQuantity"`
	MinBuyUsd         string `json:"minBuyUsd"`
	MaxBuyUsd         string `json:"maxBuyUsd"`
	Settlement        string `json:"settlement"`
	Status            string `json:"status"`
	StartAt           int64  `json:"startAt"`
	EndAt             int64  `json:"endAt"`
}

type paymentAssetResult struct {
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	Enabled   bool   `json:"enabled"`
	Stable    bool   `json:"stable"`
	OracleRef string `json:"oracleRef,omitempty"`
}

type purchaseResult struct {
	SaleType    string `json:"saleType"`
	UsdAmount   string `json:"usdAmount"`
	TokenVolume string `json:"tokenVolume"`
	Settlement  string `json:"settlement"`
	Staked      bool   `json:"staked"`
	StakeIndex  uint64 `json:"stakeIndex,omitempty"`
}

type contributionResult struct {
	Asset       string `json:"asset"`
	UsdAmount   string `json:"usdAmount"`
	TokenVolume string `json:"tokenVolume"`
	Timestamp   int64  `json:"timestamp"`
}

type contributorSummaryResult struct {
	User           string `json:"user"`
	SaleType       string `json:"saleType"`
	TotalUsd       string `json:"totalUsd"`
	TotalVolume    string `json:"totalVolume"`
	PurchaseCount  uint64 `json:"purchaseCount"`
	ClaimableTotal string `json:"claimableTotal,omitempty"`
}

type claimableResult struct {
	User         string `json:"user"`
	SaleType     string `json:"saleType"`
	TotalAccrued string `json:"totalAccrued"`
	TotalClaimed string `json:"totalClaimed"`
	Outstanding  string `json:"outstanding"`
}

type referralBalanceResult struct {
	Referrer     string `json:"referrer"`
	SaleType     string `json:"saleType,omitempty"`
	Pending      string `json:"pending"`
	SettledTotal string `json:"settledTotal"`
}

type stakePositionResult struct {
	Index          uint64 `json:"index"`
	Principal      string `json:"principal"`
	StartTime      int64  `json:"startTime"`
	ClaimedRewards string `json:"claimedRewards"`
	AprBps         uint64 `json:"aprBps"`
	Active         bool   `json:"active"`
	PendingReward  string `json:"pendingReward,omitempty"`
}

type unstakeResult struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
}
