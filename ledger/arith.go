package ledger

import (
	"github.com/holiman/uint256"
	"github.com/mezonai/circlepay/errors"
)

// mulDiv returns floor(a*num/den). The product is formed in 256 bits so it
// never wraps; the quotient fits in uint64 whenever num <= den.
func mulDiv(a, num, den uint64) (uint64, error) {
	if den == 0 {
		return 0, errors.ErrOverflow
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(num))
	quotient := product.Div(product, uint256.NewInt(den))
	if !quotient.IsUint64() {
		return 0, errors.ErrOverflow
	}
	return quotient.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, errors.ErrOverflow
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, errors.ErrInsufficientBalance
	}
	return diff.Uint64(), nil
}

// covers reports whether balance >= sum(parts) without any chance of wrapping
func covers(balance uint64, parts ...uint64) bool {
	total := new(uint256.Int)
	for _, p := range parts {
		total.Add(total, uint256.NewInt(p))
	}
	return uint256.NewInt(balance).Cmp(total) >= 0
}
