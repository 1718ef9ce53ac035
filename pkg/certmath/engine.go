package certmath

import (
	"fmt"
	"math/big"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Iteration bounds for series evaluation. Every loop in this package is
// capped by a fixed constant; no computation is data-dependently unbounded.
const (
	// DefaultIterations is the series term bound used by the plain
	// operation variants.
	DefaultIterations = 32
	// MaxIterations is the hard cap. Caller-supplied bounds above it fail
	// with CERT_ITER_BOUND.
	MaxIterations = 64
	// maxAngleReductions bounds the repeated 2*pi subtraction in Sin/Cos.
	maxAngleReductions = 256
	// maxRangeReductions bounds the halving loop in Ln.
	maxRangeReductions = 128
)

func inputs(vals ...fixed.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

// record logs the single success entry every public operation appends.
func record(l *audit.Log, op string, ins []string, result fixed.Value, meta map[string]string) {
	l.Append(op, ins, result.String(), meta)
}

// fail logs the failure before it is surfaced. Arithmetic faults are fatal
// to the single operation and never retried.
func fail(l *audit.Log, op string, ins []string, code, detail string) error {
	l.AppendFailure(op, ins, code, detail)
	return newFault(code, op, detail)
}

// Add returns a+b, failing with CERT_OVERFLOW if the sum leaves the
// 128-bit range.
func Add(l *audit.Log, a, b fixed.Value) (fixed.Value, error) {
	ins := inputs(a, b)
	sum := new(big.Int).Add(a.Raw(), b.Raw())
	v, err := fixed.FromRaw(sum)
	if err != nil {
		return fixed.Zero, fail(l, "add", ins, CodeOverflow, "sum exceeds 128-bit range")
	}
	record(l, "add", ins, v, nil)
	return v, nil
}

// Sub returns a-b, failing with CERT_UNDERFLOW when b > a: negative
// quantities are never represented.
func Sub(l *audit.Log, a, b fixed.Value) (fixed.Value, error) {
	ins := inputs(a, b)
	if a.Cmp(b) < 0 {
		return fixed.Zero, fail(l, "sub", ins, CodeUnderflow, "minuend smaller than subtrahend")
	}
	// a >= b, so the difference is always in range.
	v, _ := fixed.FromRaw(new(big.Int).Sub(a.Raw(), b.Raw()))
	record(l, "sub", ins, v, nil)
	return v, nil
}

// Mul returns a*b/SCALE with floor rounding, failing with CERT_OVERFLOW if
// the scaled product leaves the range. The 256-bit intermediate is exact.
func Mul(l *audit.Log, a, b fixed.Value) (fixed.Value, error) {
	ins := inputs(a, b)
	prod := new(big.Int).Mul(a.Raw(), b.Raw())
	prod.Quo(prod, fixed.Scale())
	v, err := fixed.FromRaw(prod)
	if err != nil {
		return fixed.Zero, fail(l, "mul", ins, CodeOverflow, "scaled product exceeds 128-bit range")
	}
	record(l, "mul", ins, v, nil)
	return v, nil
}

// Div returns a*SCALE/b with floor rounding. Fails with CERT_DIV_ZERO on a
// zero divisor and CERT_OVERFLOW when the quotient leaves the range.
func Div(l *audit.Log, a, b fixed.Value) (fixed.Value, error) {
	ins := inputs(a, b)
	if b.IsZero() {
		return fixed.Zero, fail(l, "div", ins, CodeDivZero, "division by zero")
	}
	q := new(big.Int).Mul(a.Raw(), fixed.Scale())
	q.Quo(q, b.Raw())
	v, err := fixed.FromRaw(q)
	if err != nil {
		return fixed.Zero, fail(l, "div", ins, CodeOverflow, "quotient exceeds 128-bit range")
	}
	record(l, "div", ins, v, nil)
	return v, nil
}

// Cmp compares a against b, returning -1, 0 or +1, and logs the comparison
// like any other audited operation.
func Cmp(l *audit.Log, a, b fixed.Value) int {
	c := a.Cmp(b)
	l.Append("cmp", inputs(a, b), fmt.Sprintf("%d", c), nil)
	return c
}

// Sqrt returns the square root, exact for perfect squares, floor otherwise.
// Computed as isqrt(raw*SCALE) so the result stays at scale 10^18.
func Sqrt(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	ins := inputs(x)
	r := new(big.Int).Mul(x.Raw(), fixed.Scale())
	r.Sqrt(r)
	v, err := fixed.FromRaw(r)
	if err != nil {
		return fixed.Zero, fail(l, "sqrt", ins, CodeOverflow, err.Error())
	}
	record(l, "sqrt", ins, v, nil)
	return v, nil
}
