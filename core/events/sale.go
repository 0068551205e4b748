package events

import (
	"math/big"
	"strconv"

	"github.com/rakshitdev007/remix-contracts/core/types"
)

const (
	TypeSaleCreated            = "sale.created"
	TypeSaleTimeUpdated        = "sale.time_updated"
	TypePaymentAssetConfigured = "sale.asset_configured"
	TypePurchaseRecorded       = "sale.purchase"
	TypeTokensClaimed          = "sale.claimed"
	TypeBalanceCredited        = "sale.balance_credited"
	TypeSalePauseChanged       = "sale.pause_changed"
)

// SaleCreated is emitted once per sale type when the tranche is configured and
// its inventory pulled into custody.
type SaleCreated struct {
	SaleType    string
	RateUsd     *big.Int
	TotalAmount *big.Int
	MinUsd      *big.Int
	MaxUsd      *big.Int
	Settlement  string
	StartAt     int64
	EndAt       int64
}

func (SaleCreated) EventType() string { return TypeSaleCreated }

func (e SaleCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleCreated,
		Attributes: map[string]string{
			"saleType":    e.SaleType,
			"rateUsd":     formatAmount(e.RateUsd),
			"totalAmount": formatAmount(e.TotalAmount),
			"minUsd":      formatAmount(e.MinUsd),
			"maxUsd":      formatAmount(e.MaxUsd),
			"settlement":  e.Settlement,
			"startAt":     intToString(e.StartAt),
			"endAt":       intToString(e.EndAt),
		},
	}
}

// SaleTimeUpdated is emitted when an operator re-times a sale window.
type SaleTimeUpdated struct {
	SaleType string
	StartAt  int64
	EndAt    int64
	Status   string
}

func (SaleTimeUpdated) EventType() string { return TypeSaleTimeUpdated }

func (e SaleTimeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleTimeUpdated,
		Attributes: map[string]string{
			"saleType": e.SaleType,
			"startAt":  intToString(e.StartAt),
			"endAt":    intToString(e.EndAt),
			"status":   e.Status,
		},
	}
}

// PaymentAssetConfigured is emitted whenever a payment asset is registered or
// updated.
type PaymentAssetConfigured struct {
	Asset    string
	Enabled  bool
	Stable   bool
	Decimals uint8
}

func (PaymentAssetConfigured) EventType() string { return TypePaymentAssetConfigured }

func (e PaymentAssetConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypePaymentAssetConfigured,
		Attributes: map[string]string{
			"asset":    e.Asset,
			"enabled":  strconv.FormatBool(e.Enabled),
			"stable":   strconv.FormatBool(e.Stable),
			"decimals": uintToString(uint64(e.Decimals)),
		},
	}
}

// SalePauseChanged is emitted when an operator toggles the module-wide pause
// switch.
type SalePauseChanged struct {
	Paused bool
}

func (SalePauseChanged) EventType() string { return TypeSalePauseChanged }

func (e SalePauseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSalePauseChanged,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

// BalanceCredited is emitted when the owner funds an account through the
// operator credit path.
type BalanceCredited struct {
	Account [20]byte
	Token   string
	Amount  *big.Int
}

func (BalanceCredited) EventType() string { return TypeBalanceCredited }

func (e BalanceCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeBalanceCredited,
		Attributes: map[string]string{
			"account": addrHex(e.Account),
			"token":   e.Token,
			"amount":  formatAmount(e.Amount),
		},
	}
}

// PurchaseRecorded is emitted for every successful purchase after all ledgers
// have been updated.
type PurchaseRecorded struct {
	Buyer       [20]byte
	SaleType    string
	Asset       string
	UsdAmount   *big.Int
	TokenVolume *big.Int
	Settlement  string
	Staked      bool
	Timestamp   int64
}

func (PurchaseRecorded) EventType() string { return TypePurchaseRecorded }

func (e PurchaseRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypePurchaseRecorded,
		Attributes: map[string]string{
			"buyer":      addrHex(e.Buyer),
			"saleType":   e.SaleType,
			"asset":      e.Asset,
			"usd":        formatAmount(e.UsdAmount),
			"volume":     formatAmount(e.TokenVolume),
			"settlement": e.Settlement,
			"staked":     strconv.FormatBool(e.Staked),
			"timestamp":  intToString(e.Timestamp),
		},
	}
}

// TokensClaimed is emitted when a deferred-settlement balance is claimed.
type TokensClaimed struct {
	User     [20]byte
	SaleType string
	Amount   *big.Int
	Staked   bool
}

func (TokensClaimed) EventType() string { return TypeTokensClaimed }

func (e TokensClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTokensClaimed,
		Attributes: map[string]string{
			"user":     addrHex(e.User),
			"saleType": e.SaleType,
			"amount":   formatAmount(e.Amount),
			"staked":   strconv.FormatBool(e.Staked),
		},
	}
}
