package sale

import (
	"fmt"
	"math/big"
	"strings"
)

// Registry owns the per-sale-type configuration and the payment asset table.
// Authorization and custody side effects live in the engine; the registry is
// pure ledger state.
type Registry struct {
	store Storage
}

// NewRegistry binds a registry to the provided storage.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// --- payment assets ---

// SetPaymentAsset registers or updates a payment asset. Assets are never
// deleted; disabling stops new purchases while keeping history intact.
func (r *Registry) SetPaymentAsset(asset *PaymentAsset) (*PaymentAsset, error) {
	sanitized, err := SanitizePaymentAsset(asset)
	if err != nil {
		return nil, err
	}
	if err := r.store.KVPut(assetKey(sanitized.Symbol), sanitized); err != nil {
		return nil, err
	}
	if err := r.store.KVAppend([]byte(assetIndexKey), []byte(sanitized.Symbol)); err != nil {
		return nil, err
	}
	return sanitized, nil
}

// PaymentAsset loads the asset record for a symbol.
func (r *Registry) PaymentAsset(symbol string) (*PaymentAsset, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	asset := new(PaymentAsset)
	ok, err := r.store.KVGet(assetKey(normalized), asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	return asset, nil
}

// PaymentAssets enumerates all registered asset symbols.
func (r *Registry) PaymentAssets() ([]string, error) {
	var raw [][]byte
	if err := r.store.KVGetList([]byte(assetIndexKey), &raw); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw))
	for _, entry := range raw {
		symbols = append(symbols, string(entry))
	}
	return symbols, nil
}

// --- sale configs ---

// CreateSale validates and stores a new sale tranche. A sale type can be
// configured exactly once; re-timing goes through UpdateSaleTime. A zero
// StartAt opens the sale immediately.
func (r *Registry) CreateSale(cfg *SaleConfig, now int64) (*SaleConfig, error) {
	sanitized, err := SanitizeSaleConfig(cfg)
	if err != nil {
		return nil, err
	}
	existing, err := r.Sale(sanitized.Type)
	if err == nil && existing != nil && existing.TotalTokenAmount.Sign() != 0 {
		return nil, ErrSaleAlreadyExists
	}
	if sanitized.EndAt < sanitized.StartAt {
		return nil, ErrInvalidTimeRange
	}
	saleValue := new(big.Int).Mul(sanitized.RateUsd, sanitized.TotalTokenAmount)
	if sanitized.MinBuyUsd.Cmp(saleValue) > 0 {
		return nil, ErrMinExceedsSale
	}
	sanitized.RemainingQuantity = new(big.Int).Set(sanitized.TotalTokenAmount)
	if sanitized.StartAt == 0 {
		sanitized.StartAt = now
		sanitized.Status = SaleLive
	} else {
		sanitized.Status = SaleUpcoming
	}
	if err := r.writeSale(sanitized); err != nil {
		return nil, err
	}
	if err := r.store.KVAppend([]byte(saleIndexKey), []byte(sanitized.Type)); err != nil {
		return nil, err
	}
	return sanitized, nil
}

// UpdateSaleTime re-times an existing sale window. A zero StartAt reopens the
// sale immediately; otherwise the sale returns to Upcoming until the new
// window starts. Inventory is never touched here.
func (r *Registry) UpdateSaleTime(saleType string, startAt, endAt, now int64) (*SaleConfig, error) {
	cfg, err := r.Sale(saleType)
	if err != nil {
		return nil, err
	}
	if endAt < startAt {
		return nil, ErrInvalidTimeRange
	}
	if startAt == 0 {
		cfg.StartAt = now
		cfg.Status = SaleLive
	} else {
		cfg.StartAt = startAt
		cfg.Status = SaleUpcoming
	}
	cfg.EndAt = endAt
	if err := r.writeSale(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sale loads the configuration for a sale type.
func (r *Registry) Sale(saleType string) (*SaleConfig, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	stored := new(storedSaleConfig)
	ok, err := r.store.KVGet(saleConfigKey(normalized), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotFound
	}
	return stored.toSaleConfig(), nil
}

// Sales enumerates all configured sale types.
func (r *Registry) Sales() ([]string, error) {
	var raw [][]byte
	if err := r.store.KVGetList([]byte(saleIndexKey), &raw); err != nil {
		return nil, err
	}
	types := make([]string, 0, len(raw))
	for _, entry := range raw {
		types = append(types, string(entry))
	}
	return types, nil
}

// CurrentStatus derives the lifecycle status for a sale type from the clock.
func (r *Registry) CurrentStatus(saleType string, now int64) (SaleStatus, error) {
	cfg, err := r.Sale(saleType)
	if err != nil {
		return SaleUpcoming, err
	}
	return cfg.DerivedStatus(now), nil
}

// DebitQuantity decrements the remaining quantity for a sale type, refreshing
// the cached status as a side effect.
func (r *Registry) DebitQuantity(saleType string, amount *big.Int, now int64) (*SaleConfig, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("sale: debit amount must be positive")
	}
	cfg, err := r.Sale(saleType)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(cfg.RemainingQuantity) > 0 {
		return nil, ErrInsufficientSaleQuantity
	}
	cfg.RemainingQuantity = new(big.Int).Sub(cfg.RemainingQuantity, amount)
	cfg.Status = cfg.DerivedStatus(now)
	if err := r.writeSale(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *Registry) writeSale(cfg *SaleConfig) error {
	return r.store.KVPut(saleConfigKey(cfg.Type), cfg.toStored())
}
