package certmath

import (
	"fmt"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// The self-test replays a fixed table of proof vectors and certifies both
// the output values and the audit-log digests they produce. It is a
// startup gate: any mismatch is a determinism fault and the process must
// halt rather than run with suspect arithmetic.

// ProofVector is one certified (operation, inputs, bound) -> output pair.
type ProofVector struct {
	Name       string   `json:"name"`
	Op         string   `json:"op"`
	Inputs     []string `json:"inputs"`
	Iterations int      `json:"iterations"`
	Expected   string   `json:"expected"`
}

// DeterminismError reports a proof-vector mismatch. It is process-fatal by
// contract: callers abort startup, they do not log and continue.
type DeterminismError struct {
	Vector string
	Reason string
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("certmath: determinism violation in vector %q: %s", e.Vector, e.Reason)
}

// proofVectors pins outputs that are exact under the engine's algorithms;
// every entry has been chosen so no rounding ambiguity exists.
var proofVectors = []ProofVector{
	{Name: "add_frac", Op: "add", Inputs: []string{"1.5", "2.25"}, Expected: "3.75"},
	{Name: "sub_frac", Op: "sub", Inputs: []string{"5", "1.25"}, Expected: "3.75"},
	{Name: "mul_ints", Op: "mul", Inputs: []string{"2", "3"}, Expected: "6"},
	{Name: "div_exact", Op: "div", Inputs: []string{"6", "3"}, Expected: "2"},
	{Name: "sqrt_square", Op: "sqrt", Inputs: []string{"4"}, Expected: "2"},
	{Name: "sqrt_frac", Op: "sqrt", Inputs: []string{"2.25"}, Expected: "1.5"},
	{Name: "exp_zero", Op: "exp", Inputs: []string{"0"}, Iterations: DefaultIterations, Expected: "1"},
	{Name: "ln_one", Op: "ln", Inputs: []string{"1"}, Iterations: DefaultIterations, Expected: "0"},
	{Name: "ln_two", Op: "ln", Inputs: []string{"2"}, Iterations: DefaultIterations, Expected: "0.693147180559945309"},
	{Name: "log2_two", Op: "log2", Inputs: []string{"2"}, Expected: "1"},
	{Name: "log2_four", Op: "log2", Inputs: []string{"4"}, Expected: "2"},
	{Name: "log10_one", Op: "log10", Inputs: []string{"1"}, Expected: "0"},
	{Name: "pow_zero_exp", Op: "pow", Inputs: []string{"7", "0"}, Iterations: DefaultIterations, Expected: "1"},
	{Name: "pow_unit_base", Op: "pow", Inputs: []string{"1", "5"}, Iterations: DefaultIterations, Expected: "1"},
	{Name: "sigmoid_zero", Op: "sigmoid", Inputs: []string{"0"}, Expected: "0.5"},
	{Name: "tanh_zero", Op: "tanh", Inputs: []string{"0"}, Expected: "0"},
	{Name: "erf_zero", Op: "erf", Inputs: []string{"0"}, Iterations: DefaultIterations, Expected: "0"},
	{Name: "sin_zero", Op: "sin", Inputs: []string{"0"}, Iterations: DefaultIterations, Expected: "0"},
	{Name: "cos_zero", Op: "cos", Inputs: []string{"0"}, Iterations: DefaultIterations, Expected: "1"},
}

// ProofVectors returns a copy of the certified vector table.
func ProofVectors() []ProofVector {
	out := make([]ProofVector, len(proofVectors))
	copy(out, proofVectors)
	return out
}

// SelfTest replays every proof vector twice in independent sessions.
// It fails with a DeterminismError if any output differs from the pinned
// value, if the two replays diverge in their canonical log digests, or if
// a pinned digest (vector name -> sha256 hex, typically written by
// `psictl selftest -write-pin`) does not match. pins may be nil.
func SelfTest(pins map[string]string) error {
	for _, vec := range proofVectors {
		out1, dig1, err := runVector(vec)
		if err != nil {
			return &DeterminismError{Vector: vec.Name, Reason: err.Error()}
		}
		if out1 != vec.Expected {
			return &DeterminismError{Vector: vec.Name,
				Reason: fmt.Sprintf("output %s, expected %s", out1, vec.Expected)}
		}
		_, dig2, err := runVector(vec)
		if err != nil {
			return &DeterminismError{Vector: vec.Name, Reason: "replay failed: " + err.Error()}
		}
		if dig1 != dig2 {
			return &DeterminismError{Vector: vec.Name,
				Reason: fmt.Sprintf("replay digest diverged: %s vs %s", dig1, dig2)}
		}
		if pin, ok := pins[vec.Name]; ok && pin != dig1 {
			return &DeterminismError{Vector: vec.Name,
				Reason: fmt.Sprintf("digest %s does not match pinned %s", dig1, pin)}
		}
	}
	return nil
}

// SelfTestDigests computes the per-vector log digests for pinning.
func SelfTestDigests() (map[string]string, error) {
	out := make(map[string]string, len(proofVectors))
	for _, vec := range proofVectors {
		_, dig, err := runVector(vec)
		if err != nil {
			return nil, &DeterminismError{Vector: vec.Name, Reason: err.Error()}
		}
		out[vec.Name] = dig
	}
	return out, nil
}

func runVector(vec ProofVector) (string, string, error) {
	l := audit.NewLog("selftest:" + vec.Name)
	vals := make([]fixed.Value, len(vec.Inputs))
	for i, in := range vec.Inputs {
		v, err := fixed.Parse(in)
		if err != nil {
			return "", "", fmt.Errorf("input %q: %w", in, err)
		}
		vals[i] = v
	}
	res, err := dispatch(l, vec, vals)
	if err != nil {
		return "", "", err
	}
	dig, err := l.Digest256()
	if err != nil {
		return "", "", err
	}
	return res.String(), dig, nil
}

func dispatch(l *audit.Log, vec ProofVector, vals []fixed.Value) (fixed.Value, error) {
	binary := map[string]bool{"add": true, "sub": true, "mul": true, "div": true, "pow": true}
	want := 1
	if binary[vec.Op] {
		want = 2
	}
	if len(vals) != want {
		return fixed.Zero, fmt.Errorf("op %s takes %d inputs, got %d", vec.Op, want, len(vals))
	}
	iters := vec.Iterations
	if iters == 0 {
		iters = DefaultIterations
	}
	switch vec.Op {
	case "add":
		return Add(l, vals[0], vals[1])
	case "sub":
		return Sub(l, vals[0], vals[1])
	case "mul":
		return Mul(l, vals[0], vals[1])
	case "div":
		return Div(l, vals[0], vals[1])
	case "pow":
		return PowN(l, vals[0], vals[1], iters)
	case "sqrt":
		return Sqrt(l, vals[0])
	case "exp":
		return ExpN(l, vals[0], iters)
	case "ln":
		return LnN(l, vals[0], iters)
	case "log2":
		return Log2(l, vals[0])
	case "log10":
		return Log10(l, vals[0])
	case "sigmoid":
		return Sigmoid(l, vals[0])
	case "softplus":
		return Softplus(l, vals[0])
	case "tanh":
		return Tanh(l, vals[0])
	case "erf":
		return ErfN(l, vals[0], iters)
	case "sin":
		return SinN(l, vals[0], iters)
	case "cos":
		return CosN(l, vals[0], iters)
	}
	return fixed.Zero, fmt.Errorf("unknown operation %q", vec.Op)
}
