package aggregate

import (
	"math/big"

	"github.com/dreamware/vitessgw/internal/wireval"
)

// addBigIntish adds two values where at least one is a bigint, returning
// a bigint-kinded Value so precision survives beyond what float64 can
// hold. Non-bigint operands are parsed through their decimal string form.
func addBigIntish(a, b wireval.Value) wireval.Value {
	ai := valueToBigInt(a)
	bi := valueToBigInt(b)
	sum := new(big.Int).Add(ai, bi)
	return wireval.NewBigInt(sum.String())
}

func valueToBigInt(v wireval.Value) *big.Int {
	switch v.Kind {
	case wireval.KindBigInt:
		n, ok := new(big.Int).SetString(v.BigInt, 10)
		if !ok {
			return big.NewInt(0)
		}
		return n
	case wireval.KindInt64:
		return big.NewInt(v.Int64)
	default:
		f, ok := v.AsFloat64()
		if !ok {
			return big.NewInt(0)
		}
		return big.NewInt(int64(f))
	}
}
