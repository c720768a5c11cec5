package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	basisPoints = big.NewInt(10_000)
	wad         = pow10(18)

	// maxHealthFactor is the sentinel returned for debt-free positions.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// checkAmount rejects values that are nil, negative, or too wide to fit in
// 256 bits. The bound mirrors how account balances are range-checked before
// they enter persistent state.
func checkAmount(x *big.Int) error {
	if x == nil || x.Sign() < 0 {
		return ErrArithmetic
	}
	if _, overflow := uint256.FromBig(x); overflow {
		return ErrArithmetic
	}
	return nil
}

// mulDiv computes floor(a*b/d) with an unbounded intermediate product, then
// range-checks the result. Multiply-before-divide keeps precision; the final
// check keeps results representable.
func mulDiv(a, b, d *big.Int) (*big.Int, error) {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return nil, ErrArithmetic
	}
	if a.Sign() < 0 || b.Sign() < 0 || d.Sign() < 0 {
		return nil, ErrArithmetic
	}
	out := new(big.Int).Mul(a, b)
	out.Quo(out, d)
	if err := checkAmount(out); err != nil {
		return nil, err
	}
	return out, nil
}

// bpsShare computes floor(amount*bps/10000).
func bpsShare(amount *big.Int, bps uint64) (*big.Int, error) {
	return mulDiv(amount, new(big.Int).SetUint64(bps), basisPoints)
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrArithmetic
	}
	out := new(big.Int).Add(a, b)
	if err := checkAmount(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkedSub fails rather than producing a negative balance.
func checkedSub(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrArithmetic
	}
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		return nil, ErrArithmetic
	}
	return out, nil
}
