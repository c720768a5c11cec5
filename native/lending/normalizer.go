package lending

import (
	"math/big"
	"time"
)

// PriceQuote is an ephemeral oracle reading. Value carries Decimals fractional
// digits; quotes are produced per call and never persisted.
type PriceQuote struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt int64
}

// Normalizer converts oracle quotes of arbitrary decimal precision onto a
// common 18-decimal fixed-point scale and derives cross-asset ratios. It holds
// no ledger state; the clock is injectable for deterministic tests.
type Normalizer struct {
	Now func() int64
}

// NewNormalizer returns a normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: func() int64 { return time.Now().Unix() }}
}

func (n *Normalizer) now() int64 {
	if n == nil || n.Now == nil {
		return time.Now().Unix()
	}
	return n.Now()
}

// Quote reads the feed and rejects non-positive prices and quotes older than
// staleTime seconds.
func (n *Normalizer) Quote(feed PriceFeed, staleTime int64) (PriceQuote, error) {
	if feed == nil {
		return PriceQuote{}, ErrInvalidPrice
	}
	price, updatedAt, err := feed.LatestQuote()
	if err != nil {
		return PriceQuote{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return PriceQuote{}, ErrInvalidPrice
	}
	if n.now()-updatedAt > staleTime {
		return PriceQuote{}, ErrStalePrice
	}
	decimals, err := feed.Decimals()
	if err != nil {
		return PriceQuote{}, err
	}
	return PriceQuote{Value: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: updatedAt}, nil
}

// ToScale18 rescales value from its native decimal count to 18 fractional
// digits. Scaling down uses floor division; the loss is bounded below one
// unit at 18-decimal scale.
func ToScale18(value *big.Int, decimals uint8) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrArithmetic
	}
	out := new(big.Int).Set(value)
	switch {
	case decimals < 18:
		out.Mul(out, pow10(uint(18-decimals)))
	case decimals > 18:
		out.Quo(out, pow10(uint(decimals-18)))
	}
	if err := checkAmount(out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromScale18 rescales an 18-decimal value back to a token's native decimal
// count, flooring when the token is coarser.
func FromScale18(value *big.Int, decimals uint8) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrArithmetic
	}
	out := new(big.Int).Set(value)
	switch {
	case decimals < 18:
		out.Quo(out, pow10(uint(18-decimals)))
	case decimals > 18:
		out.Mul(out, pow10(uint(decimals-18)))
	}
	if err := checkAmount(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ratio reports how many units of the "to" asset one unit of the "from" asset
// is worth, as an 18-decimal fixed-point number.
func (n *Normalizer) Ratio(from, to PriceFeed, staleTime int64) (*big.Int, error) {
	fromQuote, err := n.Quote(from, staleTime)
	if err != nil {
		return nil, err
	}
	toQuote, err := n.Quote(to, staleTime)
	if err != nil {
		return nil, err
	}
	fromScaled, err := ToScale18(fromQuote.Value, fromQuote.Decimals)
	if err != nil {
		return nil, err
	}
	toScaled, err := ToScale18(toQuote.Value, toQuote.Decimals)
	if err != nil {
		return nil, err
	}
	if toScaled.Sign() == 0 {
		return nil, ErrArithmetic
	}
	return mulDiv(fromScaled, wad, toScaled)
}

// TotalValue prices an amount of a token given its per-unit 18-decimal price.
// The result carries 18 fractional digits.
func TotalValue(pricePerUnit18, amount *big.Int, amountDecimals uint8) (*big.Int, error) {
	scaled, err := ToScale18(amount, amountDecimals)
	if err != nil {
		return nil, err
	}
	return mulDiv(pricePerUnit18, scaled, wad)
}
