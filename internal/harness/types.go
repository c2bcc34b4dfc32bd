package harness

import (
	"github.com/roach88/querylift/internal/execute"
	"github.com/roach88/querylift/internal/translate"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	SQL        string
	Parameters []translate.Parameter
	Shape      translate.ResultShape

	// ErrorCode and Error describe a failed translation.
	ErrorCode translate.ErrorCode
	Error     string

	// Rows holds executed rows for seeded scenarios.
	Rows []execute.Row

	// Failures lists the expectations that did not hold.
	Failures []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddFailure records a failed expectation.
func (r *Result) AddFailure(msg string) {
	r.Failures = append(r.Failures, msg)
	r.Pass = false
}
