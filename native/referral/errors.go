package referral

import "errors"

var (
	ErrNotAuthorized          = errors.New("referral: not authorized")
	ErrZeroAddress            = errors.New("referral: zero address")
	ErrSelfReferral           = errors.New("referral: self referral")
	ErrInvalidPercent         = errors.New("referral: invalid reward percent")
	ErrInsufficientAllocation = errors.New("referral: insufficient reward allocation")
	ErrNothingPending         = errors.New("referral: nothing pending")
	ErrSaleNotEndedYet        = errors.New("referral: sale not ended yet")
)
