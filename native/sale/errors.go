package sale

import "errors"

var (
	// Configuration errors.
	ErrNotInitialized     = errors.New("sale: engine not initialized")
	ErrAlreadyInitialized = errors.New("sale: engine already initialized")
	ErrSaleAlreadyExists  = errors.New("sale: sale already exists")
	ErrSaleNotFound       = errors.New("sale: sale not found")
	ErrInvalidTimeRange   = errors.New("sale: invalid time range")
	ErrMinExceedsSale     = errors.New("sale: minimum exceeds sale value")
	ErrZeroAddress        = errors.New("sale: zero address")

	// Eligibility and authorization errors.
	ErrNotAuthorized    = errors.New("sale: not authorized")
	ErrUnsupportedAsset = errors.New("sale: unsupported payment asset")
	ErrIdentityRequired = errors.New("sale: identity required")

	// Timing and lifecycle errors.
	ErrSaleNotLive  = errors.New("sale: sale not live")
	ErrSaleEnded    = errors.New("sale: sale ended")
	ErrSaleNotEnded = errors.New("sale: sale not ended")

	// Bounds and resource errors.
	ErrBelowMinimum             = errors.New("sale: below minimum purchase")
	ErrAboveMaximum             = errors.New("sale: above maximum purchase")
	ErrInsufficientSaleQuantity = errors.New("sale: insufficient sale quantity")
	ErrInsufficientInventory    = errors.New("sale: insufficient custody inventory")
	ErrInvalidRange             = errors.New("sale: invalid range")

	// Oracle and claim errors.
	ErrOraclePriceInvalid  = errors.New("sale: oracle price invalid")
	ErrInvalidOracleResult = errors.New("sale: invalid oracle result")
	ErrNothingToClaim      = errors.New("sale: nothing to claim")
	ErrWrongSettlementMode = errors.New("sale: wrong settlement mode")
)
