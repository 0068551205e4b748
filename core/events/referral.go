package events

import (
	"math/big"
	"strconv"

	"github.com/rakshitdev007/remix-contracts/core/types"
)

const (
	TypeReferralLinked        = "referral.linked"
	TypeReferralRewardAccrued = "referral.reward_accrued"
	TypeReferralRewardPaid    = "referral.reward_paid"
)

// ReferralLinked is emitted on the first (non-no-op) referral registration for
// a user.
type ReferralLinked struct {
	User     [20]byte
	Referrer [20]byte
}

func (ReferralLinked) EventType() string { return TypeReferralLinked }

func (e ReferralLinked) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralLinked,
		Attributes: map[string]string{
			"user":     addrHex(e.User),
			"referrer": addrHex(e.Referrer),
		},
	}
}

// ReferralRewardAccrued is emitted whenever a purchase produces a referral
// reward, whether paid immediately or parked as pending.
type ReferralRewardAccrued struct {
	Referrer [20]byte
	Buyer    [20]byte
	SaleType string
	Amount   *big.Int
	Deferred bool
}

func (ReferralRewardAccrued) EventType() string { return TypeReferralRewardAccrued }

func (e ReferralRewardAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralRewardAccrued,
		Attributes: map[string]string{
			"referrer": addrHex(e.Referrer),
			"buyer":    addrHex(e.Buyer),
			"saleType": e.SaleType,
			"amount":   formatAmount(e.Amount),
			"deferred": strconv.FormatBool(e.Deferred),
		},
	}
}

// ReferralRewardPaid is emitted when a pending balance is settled after the
// referenced sale has ended.
type ReferralRewardPaid struct {
	Referrer [20]byte
	SaleType string
	Amount   *big.Int
}

func (ReferralRewardPaid) EventType() string { return TypeReferralRewardPaid }

func (e ReferralRewardPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralRewardPaid,
		Attributes: map[string]string{
			"referrer": addrHex(e.Referrer),
			"saleType": e.SaleType,
			"amount":   formatAmount(e.Amount),
		},
	}
}
