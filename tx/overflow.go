package tx

import "errors"

// ErrGasUintOverflow is returned by IntrinsicGas when the computation would
// overflow a uint64, which can only happen for pathologically large
// transaction data.
var ErrGasUintOverflow = errors.New("tx: gas uint64 overflow")

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}

func mulOverflow(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	p := a * b
	return p, p/a != b
}

// mulAdd computes a*aPrice + b*bPrice, reporting overflow in either the
// multiplications or the final addition.
func mulAdd(a, aPrice, b, bPrice uint64) (uint64, bool) {
	x, of := mulOverflow(a, aPrice)
	if of {
		return 0, true
	}
	y, of := mulOverflow(b, bPrice)
	if of {
		return 0, true
	}
	return addOverflow(x, y)
}
