package sale

import (
	"fmt"
	"math/big"
	"strings"
)

// NativeAsset is the sentinel symbol used when a purchase is paid with the
// chain's native coin rather than a registered token.
const NativeAsset = "NATIVE"

// UsdDecimals is the fixed decimal scale all USD-denominated values carry
// inside the engine.
const UsdDecimals uint8 = 18

// SaleStatus captures the lifecycle of a sale tranche. The stored value is a
// cache refreshed on mutating calls; read paths derive the status from the
// window timestamps.
type SaleStatus uint8

const (
	SaleUpcoming SaleStatus = iota
	SaleLive
	SaleEnded
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleUpcoming, SaleLive, SaleEnded:
		return true
	default:
		return false
	}
}

func (s SaleStatus) String() string {
	switch s {
	case SaleUpcoming:
		return "upcoming"
	case SaleLive:
		return "live"
	case SaleEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// SettlementMode controls whether purchased tokens are delivered immediately
// or withheld until the sale ends.
type SettlementMode uint8

const (
	SettleInstant SettlementMode = iota
	SettleDeferred
)

func (m SettlementMode) Valid() bool {
	return m == SettleInstant || m == SettleDeferred
}

func (m SettlementMode) String() string {
	switch m {
	case SettleInstant:
		return "instant"
	case SettleDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// NormalizeSaleType canonicalises a sale-type identifier (e.g. "presale",
// "PrivateSale") to its uppercase form.
func NormalizeSaleType(saleType string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(saleType))
	if trimmed == "" {
		return "", fmt.Errorf("sale type must not be empty")
	}
	return trimmed, nil
}

// SaleConfig is the per-tranche configuration. RateUsd is the USD price of one
// whole token at UsdDecimals precision. Quantities are denominated in the sale
// token's smallest unit.
type SaleConfig struct {
	Type              string
	RateUsd           *big.Int
	TotalTokenAmount  *big.Int
	RemainingQuantity *big.Int
	MinBuyUsd         *big.Int
	MaxBuyUsd         *big.Int
	Settlement        SettlementMode
	StartAt           int64
	EndAt             int64
	Status            SaleStatus
}

// Clone returns a deep copy so callers can mutate the copy without touching
// stored state.
func (c *SaleConfig) Clone() *SaleConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.RateUsd = cloneBigInt(c.RateUsd)
	clone.TotalTokenAmount = cloneBigInt(c.TotalTokenAmount)
	clone.RemainingQuantity = cloneBigInt(c.RemainingQuantity)
	clone.MinBuyUsd = cloneBigInt(c.MinBuyUsd)
	clone.MaxBuyUsd = cloneBigInt(c.MaxBuyUsd)
	return &clone
}

// DerivedStatus computes the lifecycle status from the window timestamps and
// the supplied clock. Callers needing strict correctness always use this over
// the stored Status field.
func (c *SaleConfig) DerivedStatus(now int64) SaleStatus {
	if c == nil {
		return SaleUpcoming
	}
	switch {
	case now > c.EndAt:
		return SaleEnded
	case c.StartAt <= now:
		return SaleLive
	default:
		return SaleUpcoming
	}
}

// SanitizeSaleConfig validates and normalises a sale definition, returning a
// cloned instance with canonical casing and non-nil amounts.
func SanitizeSaleConfig(c *SaleConfig) (*SaleConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("nil sale config")
	}
	clone := c.Clone()
	saleType, err := NormalizeSaleType(clone.Type)
	if err != nil {
		return nil, err
	}
	clone.Type = saleType
	if clone.RateUsd == nil || clone.RateUsd.Sign() <= 0 {
		return nil, fmt.Errorf("sale %s: rate must be positive", saleType)
	}
	if clone.TotalTokenAmount == nil || clone.TotalTokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("sale %s: total amount must be positive", saleType)
	}
	if clone.MinBuyUsd == nil {
		clone.MinBuyUsd = big.NewInt(0)
	}
	if clone.MaxBuyUsd == nil || clone.MaxBuyUsd.Sign() <= 0 {
		return nil, fmt.Errorf("sale %s: max buy must be positive", saleType)
	}
	if clone.MinBuyUsd.Cmp(clone.MaxBuyUsd) > 0 {
		return nil, fmt.Errorf("sale %s: min buy exceeds max buy", saleType)
	}
	if !clone.Settlement.Valid() {
		return nil, fmt.Errorf("sale %s: invalid settlement mode", saleType)
	}
	return clone, nil
}

// PaymentAsset describes a currency the engine accepts. Assets are only ever
// disabled, never deleted.
type PaymentAsset struct {
	Symbol    string
	Enabled   bool
	Stable    bool
	Decimals  uint8
	OracleRef string
}

// Clone returns a copy of the asset record.
func (a *PaymentAsset) Clone() *PaymentAsset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// SanitizePaymentAsset validates and canonicalises an asset definition.
func SanitizePaymentAsset(a *PaymentAsset) (*PaymentAsset, error) {
	if a == nil {
		return nil, fmt.Errorf("nil payment asset")
	}
	clone := a.Clone()
	clone.Symbol = strings.ToUpper(strings.TrimSpace(clone.Symbol))
	if clone.Symbol == "" {
		return nil, fmt.Errorf("payment asset symbol must not be empty")
	}
	clone.OracleRef = strings.TrimSpace(clone.OracleRef)
	if !clone.Stable && clone.OracleRef == "" {
		return nil, fmt.Errorf("payment asset %s: oracle reference required", clone.Symbol)
	}
	return clone, nil
}

// Contribution is an immutable record of one purchase. Records are append-only
// and never rewritten.
type Contribution struct {
	User        [20]byte
	SaleType    string
	Asset       string
	UsdAmount   *big.Int
	TokenVolume *big.Int
	Timestamp   int64
}

// Clone returns a deep copy of the contribution record.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	clone.UsdAmount = cloneBigInt(c.UsdAmount)
	clone.TokenVolume = cloneBigInt(c.TokenVolume)
	return &clone
}

// ContributorSummary carries the running totals for one (user, saleType)
// pair. Totals only ever increase.
type ContributorSummary struct {
	TotalUsd    *big.Int
	TotalVolume *big.Int
}

// Clone returns a deep copy of the summary.
func (s *ContributorSummary) Clone() *ContributorSummary {
	if s == nil {
		return nil
	}
	return &ContributorSummary{
		TotalUsd:    cloneBigInt(s.TotalUsd),
		TotalVolume: cloneBigInt(s.TotalVolume),
	}
}

// Claimable tracks the deferred-settlement balance for one (user, saleType)
// pair. TotalClaimed never exceeds TotalAccrued.
type Claimable struct {
	TotalAccrued *big.Int
	TotalClaimed *big.Int
}

// Outstanding reports the unclaimed balance.
func (c *Claimable) Outstanding() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	accrued := cloneBigInt(c.TotalAccrued)
	claimed := cloneBigInt(c.TotalClaimed)
	return accrued.Sub(accrued, claimed)
}

// Clone returns a deep copy of the claimable record.
func (c *Claimable) Clone() *Claimable {
	if c == nil {
		return nil
	}
	return &Claimable{
		TotalAccrued: cloneBigInt(c.TotalAccrued),
		TotalClaimed: cloneBigInt(c.TotalClaimed),
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// --- stored mirrors ---
//
// RLP cannot encode signed integers, so persisted records mirror the exported
// types with uint64 timestamps.

type storedSaleConfig struct {
	Type              string
	RateUsd           *big.Int
	TotalTokenAmount  *big.Int
	RemainingQuantity *big.Int
	MinBuyUsd         *big.Int
	MaxBuyUsd         *big.Int
	Settlement        uint8
	StartAt           uint64
	EndAt             uint64
	Status            uint8
}

func (c *SaleConfig) toStored() *storedSaleConfig {
	return &storedSaleConfig{
		Type:              c.Type,
		RateUsd:           cloneBigInt(c.RateUsd),
		TotalTokenAmount:  cloneBigInt(c.TotalTokenAmount),
		RemainingQuantity: cloneBigInt(c.RemainingQuantity),
		MinBuyUsd:         cloneBigInt(c.MinBuyUsd),
		MaxBuyUsd:         cloneBigInt(c.MaxBuyUsd),
		Settlement:        uint8(c.Settlement),
		StartAt:           uint64(c.StartAt),
		EndAt:             uint64(c.EndAt),
		Status:            uint8(c.Status),
	}
}

func (s *storedSaleConfig) toSaleConfig() *SaleConfig {
	return &SaleConfig{
		Type:              s.Type,
		RateUsd:           cloneBigInt(s.RateUsd),
		TotalTokenAmount:  cloneBigInt(s.TotalTokenAmount),
		RemainingQuantity: cloneBigInt(s.RemainingQuantity),
		MinBuyUsd:         cloneBigInt(s.MinBuyUsd),
		MaxBuyUsd:         cloneBigInt(s.MaxBuyUsd),
		Settlement:        SettlementMode(s.Settlement),
		StartAt:           int64(s.StartAt),
		EndAt:             int64(s.EndAt),
		Status:            SaleStatus(s.Status),
	}
}

type storedContribution struct {
	User        [20]byte
	SaleType    string
	Asset       string
	UsdAmount   *big.Int
	TokenVolume *big.Int
	Timestamp   uint64
}

func (c *Contribution) toStored() *storedContribution {
	return &storedContribution{
		User:        c.User,
		SaleType:    c.SaleType,
		Asset:       c.Asset,
		UsdAmount:   cloneBigInt(c.UsdAmount),
		TokenVolume: cloneBigInt(c.TokenVolume),
		Timestamp:   uint64(c.Timestamp),
	}
}

func (s *storedContribution) toContribution() *Contribution {
	return &Contribution{
		User:        s.User,
		SaleType:    s.SaleType,
		Asset:       s.Asset,
		UsdAmount:   cloneBigInt(s.UsdAmount),
		TokenVolume: cloneBigInt(s.TokenVolume),
		Timestamp:   int64(s.Timestamp),
	}
}
