// Package bounds is the economic bounds guard: pure validation of computed
// rewards and allocations against the constitutionally fixed ranges. Checks
// return structured Results, never errors, for expected rejections; nothing
// here mutates state or clamps a value.
package bounds

import (
	"fmt"
	"math/big"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Reason suffixes for ECON_<CLASS>_<REASON> codes.
const (
	ReasonBelowMin     = "BELOW_MIN"
	ReasonAboveMax     = "ABOVE_MAX"
	ReasonFractionLow  = "FRACTION_LOW"
	ReasonFractionHigh = "FRACTION_HIGH"
	ReasonRecipientCap = "RECIPIENT_CAP"
	ReasonDominance    = "DOMINANCE"
	ReasonSupplyDelta  = "SUPPLY_DELTA"
	ReasonEmptyPool    = "EMPTY_POOL"
)

// Result is the outcome of a single guard check. Code is a stable machine
// identifier of the form ECON_<CLASS>_<REASON>, usable for downstream
// halting logic.
type Result struct {
	OK      bool              `json:"ok"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Detail  map[string]string `json:"detail,omitempty"`
}

func pass() Result { return Result{OK: true} }

func reject(class, reason, msg string, detail map[string]string) Result {
	return Result{
		OK:      false,
		Code:    fmt.Sprintf("ECON_%s_%s", class, reason),
		Message: msg,
		Detail:  detail,
	}
}

// ClassLimits holds the constitutional bounds for one reward/allocation
// class. All values are fixed-point constants loaded from configuration,
// never computed at runtime.
type ClassLimits struct {
	Min             fixed.Value
	Max             fixed.Value
	PoolFractionMin fixed.Value // e.g. 0.01 for 1% of the fee pool
	PoolFractionMax fixed.Value // e.g. 0.15
	RecipientCap    fixed.Value // per-recipient, per-epoch absolute cap
	SupplyDeltaMax  fixed.Value // aggregate per-transition supply delta
}

// Guard validates candidate values against per-class limits.
type Guard struct {
	limits            map[string]ClassLimits
	maxDominanceRatio fixed.Value
}

// NewGuard builds a guard over the given per-class limits and the
// distribution dominance ratio.
func NewGuard(limits map[string]ClassLimits, maxDominanceRatio fixed.Value) *Guard {
	own := make(map[string]ClassLimits, len(limits))
	for k, v := range limits {
		own[k] = v
	}
	return &Guard{limits: own, maxDominanceRatio: maxDominanceRatio}
}

// Limits returns the limits for class, reporting whether they exist.
func (g *Guard) Limits(class string) (ClassLimits, bool) {
	lim, ok := g.limits[class]
	return lim, ok
}

func (g *Guard) log(l *audit.Log, check, class string, res Result, ins ...string) Result {
	outcome := "pass"
	if !res.OK {
		outcome = res.Code
	}
	l.Append("bounds."+check, ins, outcome, map[string]string{"class": class})
	return res
}

// CheckReward validates an absolute reward amount against the class
// [min, max] range.
func (g *Guard) CheckReward(l *audit.Log, class string, amount fixed.Value) Result {
	lim, ok := g.limits[class]
	if !ok {
		return g.log(l, "reward", class,
			reject(class, ReasonAboveMax, "no limits configured for class", nil), amount.String())
	}
	if amount.Cmp(lim.Min) < 0 {
		return g.log(l, "reward", class, reject(class, ReasonBelowMin,
			fmt.Sprintf("amount %s below class minimum %s", amount, lim.Min),
			map[string]string{"amount": amount.String(), "min": lim.Min.String()}), amount.String())
	}
	if amount.Cmp(lim.Max) > 0 {
		return g.log(l, "reward", class, reject(class, ReasonAboveMax,
			fmt.Sprintf("amount %s above class maximum %s", amount, lim.Max),
			map[string]string{"amount": amount.String(), "max": lim.Max.String()}), amount.String())
	}
	return g.log(l, "reward", class, pass(), amount.String())
}

// CheckPoolFraction validates that amount lies within the class's
// fraction-of-pool window.
func (g *Guard) CheckPoolFraction(l *audit.Log, class string, amount, pool fixed.Value) Result {
	ins := []string{amount.String(), pool.String()}
	lim, ok := g.limits[class]
	if !ok {
		return g.log(l, "pool_fraction", class,
			reject(class, ReasonFractionHigh, "no limits configured for class", nil), ins...)
	}
	if pool.IsZero() {
		return g.log(l, "pool_fraction", class,
			reject(class, ReasonEmptyPool, "pool is empty", nil), ins...)
	}
	low := scaledProduct(pool, lim.PoolFractionMin)
	high := scaledProduct(pool, lim.PoolFractionMax)
	if amount.Raw().Cmp(low) < 0 {
		return g.log(l, "pool_fraction", class, reject(class, ReasonFractionLow,
			fmt.Sprintf("amount %s below %s of pool %s", amount, lim.PoolFractionMin, pool),
			map[string]string{"amount": amount.String(), "pool": pool.String()}), ins...)
	}
	if amount.Raw().Cmp(high) > 0 {
		return g.log(l, "pool_fraction", class, reject(class, ReasonFractionHigh,
			fmt.Sprintf("amount %s above %s of pool %s", amount, lim.PoolFractionMax, pool),
			map[string]string{"amount": amount.String(), "pool": pool.String()}), ins...)
	}
	return g.log(l, "pool_fraction", class, pass(), ins...)
}

// CheckRecipientCap validates a recipient's running epoch total after the
// candidate amount is added.
func (g *Guard) CheckRecipientCap(l *audit.Log, class, recipient string, amount, runningTotal fixed.Value) Result {
	ins := []string{recipient, amount.String(), runningTotal.String()}
	lim, ok := g.limits[class]
	if !ok {
		return g.log(l, "recipient_cap", class,
			reject(class, ReasonRecipientCap, "no limits configured for class", nil), ins...)
	}
	next := new(big.Int).Add(runningTotal.Raw(), amount.Raw())
	if next.Cmp(lim.RecipientCap.Raw()) > 0 {
		return g.log(l, "recipient_cap", class, reject(class, ReasonRecipientCap,
			fmt.Sprintf("recipient %s epoch total would exceed cap %s", recipient, lim.RecipientCap),
			map[string]string{"recipient": recipient, "cap": lim.RecipientCap.String()}), ins...)
	}
	return g.log(l, "recipient_cap", class, pass(), ins...)
}

// CheckDominance validates that a single recipient's share of a
// distribution does not exceed the dominance ratio.
func (g *Guard) CheckDominance(l *audit.Log, recipient string, amount, pool fixed.Value) Result {
	const class = "DISTRIBUTION"
	ins := []string{recipient, amount.String(), pool.String()}
	if pool.IsZero() {
		return g.log(l, "dominance", class,
			reject(class, ReasonEmptyPool, "pool is empty", nil), ins...)
	}
	capRaw := scaledProduct(pool, g.maxDominanceRatio)
	if amount.Raw().Cmp(capRaw) > 0 {
		return g.log(l, "dominance", class, reject(class, ReasonDominance,
			fmt.Sprintf("recipient %s share %s exceeds dominance cap of pool %s", recipient, amount, pool),
			map[string]string{"recipient": recipient, "ratio": g.maxDominanceRatio.String()}), ins...)
	}
	return g.log(l, "dominance", class, pass(), ins...)
}

// CheckSupplyDelta validates the aggregate supply delta a committed
// transition produced for one class. The state engine re-applies this to
// resulting deltas as defense in depth, not just to the inputs.
func (g *Guard) CheckSupplyDelta(l *audit.Log, class string, delta fixed.Value) Result {
	lim, ok := g.limits[class]
	if !ok {
		return g.log(l, "supply_delta", class,
			reject(class, ReasonSupplyDelta, "no limits configured for class", nil), delta.String())
	}
	if delta.Cmp(lim.SupplyDeltaMax) > 0 {
		return g.log(l, "supply_delta", class, reject(class, ReasonSupplyDelta,
			fmt.Sprintf("supply delta %s exceeds maximum %s", delta, lim.SupplyDeltaMax),
			map[string]string{"delta": delta.String(), "max": lim.SupplyDeltaMax.String()}), delta.String())
	}
	return g.log(l, "supply_delta", class, pass(), delta.String())
}

// scaledProduct returns pool*ratio/SCALE as raw units without touching the
// audit log; the enclosing check logs once for the whole comparison.
func scaledProduct(pool, ratio fixed.Value) *big.Int {
	p := new(big.Int).Mul(pool.Raw(), ratio.Raw())
	return p.Quo(p, fixed.Scale())
}
