package certmath

import (
	"fmt"
	"math/big"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Fixed-point constants, rounded to 18 decimal digits. These are part of
// the certified surface: changing any digit changes every downstream
// digest.
var (
	ln2Raw       = big.NewInt(693147180559945309)  // ln(2)
	ln10Raw      = big.NewInt(2302585092994045684) // ln(10)
	sqrt2Raw     = big.NewInt(1414213562373095049) // sqrt(2)
	twoPiRaw     = big.NewInt(6283185307179586477) // 2*pi
	twoSqrtPiRaw = big.NewInt(1128379167095512574) // 2/sqrt(pi)
)

func iterMeta(iters int) map[string]string {
	return map[string]string{"iterations": fmt.Sprintf("%d", iters)}
}

func checkIters(l *audit.Log, op string, ins []string, iters int) error {
	if iters < 1 || iters > MaxIterations {
		return fail(l, op, ins, CodeIterBound,
			fmt.Sprintf("iteration bound %d outside [1, %d]", iters, MaxIterations))
	}
	return nil
}

// Ln returns the natural logarithm with the default term bound.
// Domain: x >= 1. For x in (0, 1) the result would be negative; callers
// apply ln(x) = -ln(1/x) on the reciprocal instead.
func Ln(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return LnN(l, x, DefaultIterations)
}

// LnN is Ln with an explicit series term bound.
//
// Range reduction halves the operand (a fixed maximum number of times)
// until it lies in [1/sqrt2, sqrt2), tracking the binary exponent k, then
// evaluates ln(m) = 2*atanh((m-1)/(m+1)) as an alternating series and
// recombines with k*ln(2).
func LnN(l *audit.Log, x fixed.Value, iters int) (fixed.Value, error) {
	ins := inputs(x)
	if err := checkIters(l, "ln", ins, iters); err != nil {
		return fixed.Zero, err
	}
	if x.Cmp(fixed.One) < 0 {
		return fixed.Zero, fail(l, "ln", ins, CodeDomain,
			"argument below 1; use ln(x) = -ln(1/x) for x in (0,1)")
	}
	lnm, k, err := lnReduced(l, "ln", ins, x, iters)
	if err != nil {
		return fixed.Zero, err
	}
	res := new(big.Int).Mul(big.NewInt(int64(k)), ln2Raw)
	res.Add(res, lnm)
	v, ferr := fixed.FromRaw(res)
	if ferr != nil {
		return fixed.Zero, fail(l, "ln", ins, CodeOverflow, ferr.Error())
	}
	record(l, "ln", ins, v, iterMeta(iters))
	return v, nil
}

// lnReduced computes ln of the reduced mantissa plus the binary exponent.
// The returned big.Int is signed: the mantissa may lie below 1.
func lnReduced(l *audit.Log, op string, ins []string, x fixed.Value, iters int) (*big.Int, int, error) {
	scale := fixed.Scale()
	m := x.Raw()
	k := 0
	for m.Cmp(sqrt2Raw) >= 0 {
		if k >= maxRangeReductions {
			return nil, 0, fail(l, op, ins, CodeIterBound, "range reduction bound exhausted")
		}
		m.Rsh(m, 1)
		k++
	}

	// z = (m-1)/(m+1), |z| < 0.172
	num := new(big.Int).Sub(m, scale)
	den := new(big.Int).Add(m, scale)
	z := new(big.Int).Mul(num, scale)
	z.Quo(z, den)

	z2 := new(big.Int).Mul(z, z)
	z2.Quo(z2, scale)

	term := new(big.Int).Set(z)
	sum := new(big.Int).Set(z)
	converged := false
	for i := 1; i <= iters; i++ {
		term.Mul(term, z2)
		term.Quo(term, scale)
		if term.Sign() == 0 {
			converged = true
			break
		}
		frac := new(big.Int).Quo(term, big.NewInt(int64(2*i+1)))
		sum.Add(sum, frac)
	}
	if !converged && term.Sign() != 0 {
		return nil, 0, fail(l, op, ins, CodeIterBound,
			fmt.Sprintf("series did not converge within %d terms", iters))
	}
	sum.Mul(sum, big.NewInt(2))
	return sum, k, nil
}

// Exp returns e^x with the default term bound.
func Exp(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return ExpN(l, x, DefaultIterations)
}

// ExpN is Exp with an explicit series term bound.
//
// Reduction: x = k*ln2 + r with r in [0, ln2); e^x = 2^k * e^r where e^r
// comes from the Taylor series with incrementally updated term
// accumulators. Overflows for x beyond roughly 47.3.
func ExpN(l *audit.Log, x fixed.Value, iters int) (fixed.Value, error) {
	ins := inputs(x)
	if err := checkIters(l, "exp", ins, iters); err != nil {
		return fixed.Zero, err
	}
	scale := fixed.Scale()
	k := new(big.Int).Quo(x.Raw(), ln2Raw)
	if k.Cmp(big.NewInt(128)) > 0 {
		return fixed.Zero, fail(l, "exp", ins, CodeOverflow, "exponent exceeds representable range")
	}
	r := new(big.Int).Mul(k, ln2Raw)
	r.Sub(x.Raw(), r)

	term := new(big.Int).Set(scale)
	sum := new(big.Int).Set(scale)
	converged := false
	for i := 1; i <= iters; i++ {
		term.Mul(term, r)
		term.Quo(term, scale)
		term.Quo(term, big.NewInt(int64(i)))
		if term.Sign() == 0 {
			converged = true
			break
		}
		sum.Add(sum, term)
	}
	if !converged && term.Sign() != 0 {
		return fixed.Zero, fail(l, "exp", ins, CodeIterBound,
			fmt.Sprintf("series did not converge within %d terms", iters))
	}
	sum.Lsh(sum, uint(k.Uint64()))
	v, err := fixed.FromRaw(sum)
	if err != nil {
		return fixed.Zero, fail(l, "exp", ins, CodeOverflow, "result exceeds 128-bit range")
	}
	record(l, "exp", ins, v, iterMeta(iters))
	return v, nil
}

// Pow returns a^b computed as exp(b*ln(a)). Domain: a >= 1 (the Ln
// domain); a == 1 and b == 0 short-circuit exactly. Delegated operations
// log their own entries in addition to the final pow entry.
func Pow(l *audit.Log, a, b fixed.Value) (fixed.Value, error) {
	return PowN(l, a, b, DefaultIterations)
}

// PowN is Pow with an explicit series term bound.
func PowN(l *audit.Log, a, b fixed.Value, iters int) (fixed.Value, error) {
	ins := inputs(a, b)
	if b.IsZero() || a.Equal(fixed.One) {
		record(l, "pow", ins, fixed.One, iterMeta(iters))
		return fixed.One, nil
	}
	lna, err := LnN(l, a, iters)
	if err != nil {
		return fixed.Zero, err
	}
	blna, err := Mul(l, b, lna)
	if err != nil {
		return fixed.Zero, err
	}
	v, err := ExpN(l, blna, iters)
	if err != nil {
		return fixed.Zero, err
	}
	record(l, "pow", ins, v, iterMeta(iters))
	return v, nil
}

// Log2 returns ln(x)/ln(2). Domain: x >= 1.
func Log2(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return logBase(l, "log2", x, ln2Raw)
}

// Log10 returns ln(x)/ln(10). Domain: x >= 1.
func Log10(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return logBase(l, "log10", x, ln10Raw)
}

func logBase(l *audit.Log, op string, x fixed.Value, baseLn *big.Int) (fixed.Value, error) {
	ins := inputs(x)
	lnx, err := LnN(l, x, DefaultIterations)
	if err != nil {
		return fixed.Zero, err
	}
	q := new(big.Int).Mul(lnx.Raw(), fixed.Scale())
	q.Quo(q, baseLn)
	v, ferr := fixed.FromRaw(q)
	if ferr != nil {
		return fixed.Zero, fail(l, op, ins, CodeOverflow, ferr.Error())
	}
	record(l, op, ins, v, nil)
	return v, nil
}

// Sigmoid returns e^x/(1+e^x) for x >= 0. The negative branch is the
// caller's identity: sigmoid(-x) = 1 - sigmoid(x).
func Sigmoid(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	ins := inputs(x)
	t, err := Exp(l, x)
	if err != nil {
		return fixed.Zero, err
	}
	den := new(big.Int).Add(t.Raw(), fixed.Scale())
	q := new(big.Int).Mul(t.Raw(), fixed.Scale())
	q.Quo(q, den)
	v, ferr := fixed.FromRaw(q)
	if ferr != nil {
		return fixed.Zero, fail(l, "sigmoid", ins, CodeOverflow, ferr.Error())
	}
	record(l, "sigmoid", ins, v, nil)
	return v, nil
}

// Softplus returns ln(1+e^x) for x >= 0.
func Softplus(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	ins := inputs(x)
	t, err := Exp(l, x)
	if err != nil {
		return fixed.Zero, err
	}
	onePlus, err := Add(l, t, fixed.One)
	if err != nil {
		return fixed.Zero, err
	}
	v, err := Ln(l, onePlus)
	if err != nil {
		return fixed.Zero, err
	}
	record(l, "softplus", ins, v, nil)
	return v, nil
}

// Tanh returns (e^x - e^-x)/(e^x + e^-x) for x >= 0, computed from e^x and
// its reciprocal; tanh(-x) = -tanh(x) is the caller's identity.
func Tanh(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	ins := inputs(x)
	t, err := Exp(l, x)
	if err != nil {
		return fixed.Zero, err
	}
	scale := fixed.Scale()
	inv := new(big.Int).Mul(scale, scale)
	inv.Quo(inv, t.Raw())
	num := new(big.Int).Sub(t.Raw(), inv)
	den := new(big.Int).Add(t.Raw(), inv)
	num.Mul(num, scale)
	num.Quo(num, den)
	v, ferr := fixed.FromRaw(num)
	if ferr != nil {
		return fixed.Zero, fail(l, "tanh", ins, CodeOverflow, ferr.Error())
	}
	record(l, "tanh", ins, v, nil)
	return v, nil
}

// Erf returns the error function for x >= 0 via the alternating Maclaurin
// series with incrementally updated accumulators. Arguments much beyond 3
// exhaust the term bound before converging and fail with CERT_ITER_BOUND;
// erf is within 1e-18 of 1 there and callers treat it as saturated.
func Erf(l *audit.Log, x fixed.Value) (fixed.Value, error) {
	return ErfN(l, x, DefaultIterations)
}

// ErfN is Erf with an explicit series term bound.
func ErfN(l *audit.Log, x fixed.Value, iters int) (fixed.Value, error) {
	ins := inputs(x)
	if err := checkIters(l, "erf", ins, iters); err != nil {
		return fixed.Zero, err
	}
	scale := fixed.Scale()
	x2 := new(big.Int).Mul(x.Raw(), x.Raw())
	x2.Quo(x2, scale)

	// base_n = x^(2n+1)/n!; contribution_n = (-1)^n * base_n/(2n+1)
	base := new(big.Int).Set(x.Raw())
	sum := new(big.Int).Set(x.Raw())
	converged := base.Sign() == 0
	for i := 1; i <= iters; i++ {
		base.Mul(base, x2)
		base.Quo(base, scale)
		base.Quo(base, big.NewInt(int64(i)))
		contrib := new(big.Int).Quo(base, big.NewInt(int64(2*i+1)))
		if contrib.Sign() == 0 {
			converged = true
			break
		}
		if i%2 == 1 {
			sum.Sub(sum, contrib)
		} else {
			sum.Add(sum, contrib)
		}
	}
	if !converged {
		return fixed.Zero, fail(l, "erf", ins, CodeIterBound,
			fmt.Sprintf("series did not converge within %d terms", iters))
	}
	sum.Mul(sum, twoSqrtPiRaw)
	sum.Quo(sum, scale)
	if sum.Sign() < 0 {
		// Rounding can only push a near-zero result below zero.
		sum.SetInt64(0)
	}
	v, ferr := fixed.FromRaw(sum)
	if ferr != nil {
		return fixed.Zero, fail(l, "erf", ins, CodeOverflow, ferr.Error())
	}
	record(l, "erf", ins, v, iterMeta(iters))
	return v, nil
}
