// Package fixed provides the unsigned 128-bit fixed-point value that every
// monetary and metric quantity in the ledger core is expressed in.
//
// A Value is an unsigned integer in [0, 2^128-1] interpreted at scale 10^18.
// Negative quantities are never represented; callers handle sign through
// documented identities (compute 1-f(x) instead of f(-x)). Arithmetic that
// would leave the range fails instead of wrapping; the audited operations
// live in pkg/certmath.
package fixed

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// FracDigits is the number of decimal fractional digits carried by a Value.
const FracDigits = 18

var (
	scaleInt = new(big.Int).Exp(big.NewInt(10), big.NewInt(FracDigits), nil)
	maxInt   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	// decimalPattern matches canonical decimal input: digits, optional
	// fractional part, no sign, no exponent.
	decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// ErrRange is wrapped by constructors when a quantity leaves [0, 2^128-1].
var ErrRange = fmt.Errorf("fixed: value outside unsigned 128-bit range")

// Value is an immutable unsigned 128-bit fixed-point number at scale 10^18.
// The zero Value is usable and equals 0.
type Value struct {
	n *big.Int
}

// Zero is the additive identity.
var Zero = Value{}

// One is 1.0 in scaled units (10^18).
var One = mustRaw(new(big.Int).Set(scaleInt))

// Scale returns 10^18 as a fresh big.Int.
func Scale() *big.Int { return new(big.Int).Set(scaleInt) }

// Max returns 2^128-1 as a fresh big.Int.
func Max() *big.Int { return new(big.Int).Set(maxInt) }

// FromRaw builds a Value from already-scaled integer units.
func FromRaw(raw *big.Int) (Value, error) {
	if raw.Sign() < 0 || raw.Cmp(maxInt) > 0 {
		return Value{}, fmt.Errorf("%w: %s", ErrRange, raw.String())
	}
	return Value{n: new(big.Int).Set(raw)}, nil
}

func mustRaw(raw *big.Int) Value {
	v, err := FromRaw(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// FromUint64 builds a Value representing whole units (whole * 10^18).
func FromUint64(whole uint64) Value {
	raw := new(big.Int).SetUint64(whole)
	raw.Mul(raw, scaleInt)
	return Value{n: raw}
}

// FromUnits builds whole.frac where frac is expressed in 10^-18 units and
// must be below 10^18.
func FromUnits(whole, frac uint64) (Value, error) {
	f := new(big.Int).SetUint64(frac)
	if f.Cmp(scaleInt) >= 0 {
		return Value{}, fmt.Errorf("fixed: fractional part %d exceeds scale", frac)
	}
	raw := new(big.Int).SetUint64(whole)
	raw.Mul(raw, scaleInt)
	raw.Add(raw, f)
	return FromRaw(raw)
}

// Parse reads a canonical decimal string: unsigned digits with at most 18
// fractional digits, no exponent notation.
func Parse(s string) (Value, error) {
	if !decimalPattern.MatchString(s) {
		return Value{}, fmt.Errorf("fixed: invalid decimal %q", s)
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if len(fracPart) > FracDigits {
		return Value{}, fmt.Errorf("fixed: %q has more than %d fractional digits", s, FracDigits)
	}
	raw, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return Value{}, fmt.Errorf("fixed: invalid decimal %q", s)
	}
	raw.Mul(raw, scaleInt)
	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart+strings.Repeat("0", FracDigits-len(fracPart)), 10)
		if !ok {
			return Value{}, fmt.Errorf("fixed: invalid decimal %q", s)
		}
		raw.Add(raw, frac)
	}
	return FromRaw(raw)
}

// MustParse is Parse for constants in tests and configuration defaults.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) raw() *big.Int {
	if v.n == nil {
		return new(big.Int)
	}
	return v.n
}

// Raw returns the scaled integer units as a defensive copy.
func (v Value) Raw() *big.Int { return new(big.Int).Set(v.raw()) }

// IsZero reports whether v equals 0.
func (v Value) IsZero() bool { return v.raw().Sign() == 0 }

// Cmp returns -1, 0 or +1 comparing v against o.
func (v Value) Cmp(o Value) int { return v.raw().Cmp(o.raw()) }

// Equal reports exact equality.
func (v Value) Equal(o Value) bool { return v.Cmp(o) == 0 }

// String renders the canonical decimal form: integer part, then the
// fractional part with trailing zeros trimmed, "0" for zero. This is the
// representation written into audit logs, so it must stay byte-stable.
func (v Value) String() string {
	q, r := new(big.Int).QuoRem(v.raw(), scaleInt, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	rs := r.String()
	frac := strings.TrimRight(strings.Repeat("0", FracDigits-len(rs))+rs, "0")
	return q.String() + "." + frac
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (v Value) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler via Parse.
func (v *Value) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
