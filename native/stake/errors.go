package stake

import "errors"

var (
	ErrZeroAmount        = errors.New("stake: amount must be positive")
	ErrStakingPaused     = errors.New("stake: staking paused")
	ErrPositionNotFound  = errors.New("stake: position not found")
	ErrPositionClosed    = errors.New("stake: position already closed")
	ErrNoRewardsYet      = errors.New("stake: no rewards accrued yet")
	ErrMinDurationNotMet = errors.New("stake: minimum duration not elapsed")
	ErrNothingToWithdraw = errors.New("stake: nothing to withdraw")
	ErrInvalidParams     = errors.New("stake: invalid parameters")
)
