// Package certmath is the certified arithmetic engine: pure, audited
// fixed-point operations whose every call appends a structured entry to a
// caller-supplied audit log. Identical inputs produce byte-identical logs
// on every machine; SelfTest enforces that at startup.
//
// All operands and results are unsigned (pkg/fixed). Functions whose true
// result would be negative fail with a domain fault naming the identity
// the caller should apply instead; signed quantities never cross this API.
package certmath

import (
	"errors"
	"fmt"
)

// Fault codes. Stable machine identifiers: downstream halting logic keys
// off these strings, never off message text.
const (
	CodeOverflow  = "CERT_OVERFLOW"
	CodeUnderflow = "CERT_UNDERFLOW"
	CodeDivZero   = "CERT_DIV_ZERO"
	CodeDomain    = "CERT_DOMAIN"
	CodeIterBound = "CERT_ITER_BOUND"
)

// Fault is an arithmetic failure. Always fatal to the single operation,
// never retried, always logged before propagation.
type Fault struct {
	Code   string
	Op     string
	Detail string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("certmath: %s in %s: %s", f.Code, f.Op, f.Detail)
}

func newFault(code, op, detail string) *Fault {
	return &Fault{Code: code, Op: op, Detail: detail}
}

// faultCode extracts the code from an error, empty if not a Fault.
func faultCode(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsOverflow reports whether err is an overflow fault.
func IsOverflow(err error) bool { return faultCode(err) == CodeOverflow }

// IsUnderflow reports whether err is an underflow fault.
func IsUnderflow(err error) bool { return faultCode(err) == CodeUnderflow }

// IsDivisionByZero reports whether err is a division-by-zero fault.
func IsDivisionByZero(err error) bool { return faultCode(err) == CodeDivZero }

// IsDomain reports whether err is a domain fault.
func IsDomain(err error) bool { return faultCode(err) == CodeDomain }

// IsIterationBound reports whether err is an iteration-bound fault.
func IsIterationBound(err error) bool { return faultCode(err) == CodeIterBound }
