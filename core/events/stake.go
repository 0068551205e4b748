package events

import (
	"math/big"
	"strconv"

	"github.com/rakshitdev007/remix-contracts/core/types"
)

const (
	TypeStakeCreated       = "stake.created"
	TypeStakeRewardClaimed = "stake.reward_claimed"
	TypeStakeUnstaked      = "stake.unstaked"
	TypeStakePauseChanged  = "stake.pause_changed"
)

// StakeCreated is emitted when a new position is opened, either directly or on
// behalf of a buyer during purchase settlement.
type StakeCreated struct {
	Owner     [20]byte
	Payer     [20]byte
	Index     uint64
	Principal *big.Int
	AprBps    uint64
	StartTime int64
}

func (StakeCreated) EventType() string { return TypeStakeCreated }

func (e StakeCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeCreated,
		Attributes: map[string]string{
			"owner":     addrHex(e.Owner),
			"payer":     addrHex(e.Payer),
			"index":     uintToString(e.Index),
			"principal": formatAmount(e.Principal),
			"aprBps":    uintToString(e.AprBps),
			"startTime": intToString(e.StartTime),
		},
	}
}

// StakeRewardClaimed is emitted when accrued rewards are paid out without
// closing the position.
type StakeRewardClaimed struct {
	Owner  [20]byte
	Index  uint64
	Amount *big.Int
}

func (StakeRewardClaimed) EventType() string { return TypeStakeRewardClaimed }

func (e StakeRewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeRewardClaimed,
		Attributes: map[string]string{
			"owner":  addrHex(e.Owner),
			"index":  uintToString(e.Index),
			"amount": formatAmount(e.Amount),
		},
	}
}

// StakeUnstaked is emitted when a position is closed and principal plus final
// reward paid out.
type StakeUnstaked struct {
	Owner     [20]byte
	Index     uint64
	Principal *big.Int
	Reward    *big.Int
}

func (StakeUnstaked) EventType() string { return TypeStakeUnstaked }

func (e StakeUnstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeUnstaked,
		Attributes: map[string]string{
			"owner":     addrHex(e.Owner),
			"index":     uintToString(e.Index),
			"principal": formatAmount(e.Principal),
			"reward":    formatAmount(e.Reward),
		},
	}
}

// StakePauseChanged is emitted when an operator toggles the global staking
// lock.
type StakePauseChanged struct {
	Paused bool
}

func (StakePauseChanged) EventType() string { return TypeStakePauseChanged }

func (e StakePauseChanged) Event() *types.Event {
	return &types.Event{
		Type:       TypeStakePauseChanged,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}
