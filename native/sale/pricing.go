package sale

import (
	"fmt"
	"math/big"
)

// PriceFeed resolves the latest USD price for an asset along with the decimal
// precision of the reported value.
type PriceFeed interface {
	LatestPrice(asset string) (price *big.Int, decimals uint8, err error)
}

// Normalizer converts raw payment amounts into the engine's fixed-precision
// USD representation.
type Normalizer struct {
	feed PriceFeed
}

// NewNormalizer constructs a normalizer over the supplied price feed.
func NewNormalizer(feed PriceFeed) *Normalizer {
	return &Normalizer{feed: feed}
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// ConvertToUSD converts rawAmount of the given asset into USD value at
// UsdDecimals precision. Disabled assets convert to zero so the caller can
// reject the purchase. All division floors toward zero; the multiply happens
// before the divide to preserve precision.
func (n *Normalizer) ConvertToUSD(asset *PaymentAsset, rawAmount *big.Int) (*big.Int, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: nil asset", ErrUnsupportedAsset)
	}
	if rawAmount == nil || rawAmount.Sign() < 0 {
		return nil, fmt.Errorf("sale: raw amount must be non-negative")
	}
	if !asset.Enabled {
		return big.NewInt(0), nil
	}
	if asset.Stable {
		return rescale(rawAmount, asset.Decimals, UsdDecimals), nil
	}
	if n == nil || n.feed == nil || asset.OracleRef == "" {
		return nil, fmt.Errorf("%w: no oracle for %s", ErrOraclePriceInvalid, asset.Symbol)
	}
	price, priceDecimals, err := n.feed.LatestPrice(asset.OracleRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOraclePriceInvalid, asset.Symbol, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s reported non-positive price", ErrOraclePriceInvalid, asset.Symbol)
	}

	usd := new(big.Int).Mul(rawAmount, price)
	usd.Quo(usd, pow10(asset.Decimals))
	switch {
	case priceDecimals > asset.Decimals:
		usd.Quo(usd, pow10(priceDecimals-asset.Decimals))
	case priceDecimals < asset.Decimals:
		usd.Mul(usd, pow10(asset.Decimals-priceDecimals))
	}
	return usd, nil
}

// rescale shifts a value between two decimal precisions, flooring when the
// target is coarser.
func rescale(v *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case to > from:
		out.Mul(out, pow10(to-from))
	case from > to:
		out.Quo(out, pow10(from-to))
	}
	return out
}

// TokenVolume converts a USD amount into the token quantity it buys at the
// given per-token rate, in the token's smallest unit. Floor division.
func TokenVolume(usdAmount, rateUsd *big.Int, tokenDecimals uint8) (*big.Int, error) {
	if rateUsd == nil || rateUsd.Sign() <= 0 {
		return nil, fmt.Errorf("sale: rate must be positive")
	}
	if usdAmount == nil || usdAmount.Sign() < 0 {
		return nil, fmt.Errorf("sale: usd amount must be non-negative")
	}
	volume := new(big.Int).Mul(usdAmount, pow10(tokenDecimals))
	return volume.Quo(volume, rateUsd), nil
}
