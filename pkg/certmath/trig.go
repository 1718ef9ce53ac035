package certmath

import (
	"fmt"
	"math/big"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Sin returns sin(x) for angles whose sine is non-negative. The angle is
// first reduced into [0, 2*pi) by bounded repeated subtraction (never a
// floating modulo); the alternating Taylor series then runs with signed
// internal accumulators. If the true result is negative it cannot be
// represented and the call fails with CERT_DOMAIN naming the reflection
// identity sin(x) = sin(pi - x) for the caller to apply.
func Sin(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return SinN(l, x, DefaultIterations)
}

// SinN is Sin with an explicit series term bound.
func SinN(l *audit.Log, x fixed.Value, iters int) (fixed.Value, error) {
	return taylorTrig(l, "sin", x, iters)
}

// Cos returns cos(x) under the same reduction and sign rules as Sin; the
// identity for negative true results is cos(x) = -cos(pi - x).
func Cos(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return CosN(l, x, DefaultIterations)
}

// CosN is Cos with an explicit series term bound.
func CosN(l *audit.Log, x fixed.Value, iters int) (fixed.Value, error) {
	return taylorTrig(l, "cos", x, iters)
}

func taylorTrig(l *audit.Log, op string, x fixed.Value, iters int) (fixed.Value, error) {
	ins := inputs(x)
	if err := checkIters(l, op, ins, iters); err != nil {
		return fixed.Zero, err
	}
	m, err := reduceAngle(l, op, ins, x)
	if err != nil {
		return fixed.Zero, err
	}
	scale := fixed.Scale()
	m2 := new(big.Int).Mul(m, m)
	m2.Quo(m2, scale)

	// Alternating series with incrementally updated power/factorial
	// accumulators: each step multiplies by m^2 and divides by the next
	// two factorial factors.
	var term, sum *big.Int
	var factorBase int64
	if op == "sin" {
		term = new(big.Int).Set(m) // m^1/1!
		factorBase = 2             // next factors: (2)(3), (4)(5), ...
	} else {
		term = new(big.Int).Set(scale) // m^0/0!
		factorBase = 1                 // next factors: (1)(2), (3)(4), ...
	}
	sum = new(big.Int).Set(term)
	converged := term.Sign() == 0
	for i := 0; i < iters; i++ {
		f1 := factorBase + 2*int64(i)
		f2 := f1 + 1
		term.Mul(term, m2)
		term.Quo(term, scale)
		term.Quo(term, big.NewInt(f1*f2))
		if term.Sign() == 0 {
			converged = true
			break
		}
		if i%2 == 0 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
	if !converged {
		return fixed.Zero, fail(l, op, ins, CodeIterBound,
			fmt.Sprintf("series did not converge within %d terms", iters))
	}
	if sum.Sign() < 0 {
		identity := "sin(x) = sin(pi - x)"
		if op == "cos" {
			identity = "cos(x) = -cos(pi - x)"
		}
		return fixed.Zero, fail(l, op, ins, CodeDomain,
			"result is negative and unrepresentable; apply "+identity)
	}
	v, ferr := fixed.FromRaw(sum)
	if ferr != nil {
		return fixed.Zero, fail(l, op, ins, CodeOverflow, ferr.Error())
	}
	record(l, op, ins, v, iterMeta(iters))
	return v, nil
}

// reduceAngle brings x into [0, 2*pi) by repeated subtraction, bounded by
// maxAngleReductions. Very large angles exhaust the bound and fail; hosts
// feeding raw phase accumulators reduce them before calling in.
func reduceAngle(l *audit.Log, op string, ins []string, x fixed.Value) (*big.Int, error) {
	m := x.Raw()
	for i := 0; m.Cmp(twoPiRaw) >= 0; i++ {
		if i >= maxAngleReductions {
			return nil, fail(l, op, ins, CodeIterBound, "angle reduction bound exhausted")
		}
		m.Sub(m, twoPiRaw)
	}
	return m, nil
}
