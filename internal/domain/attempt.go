package domain

import (
	"time"
)

// Outcome classifies one invocation.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeExecutionFailure Outcome = "execution_failure"
	OutcomeTimeout          Outcome = "timeout"
)

// InvocationAttempt records a single provider invocation.
type InvocationAttempt struct {
	Provider string
	Outcome  Outcome
	Mode     Mode
	// Output is the trimmed provider output, set only on success.
	Output string
	// Detail is set only on failure and always starts with the provider id.
	Detail     string
	ExitStatus int
	Duration   time.Duration
	Truncated  bool
}

// Succeeded reports whether the attempt produced usable output.
func (a InvocationAttempt) Succeeded() bool { return a.Outcome == OutcomeSuccess }

// Err returns the attempt's failure as a DomainError, or nil on success.
func (a InvocationAttempt) Err() error {
	switch a.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeTimeout:
		return NewDomainError("Invoke", ErrTimeout, a.Detail)
	default:
		return NewDomainError("Invoke", ErrExecutionFailure, a.Detail)
	}
}

// DispatchResult is the full record of one dispatch.
type DispatchResult struct {
	ID        string
	Selection string
	Query     Query
	Attempts  []InvocationAttempt
	Canceled  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports whether any attempt succeeded.
func (r DispatchResult) Succeeded() bool {
	_, ok := r.Winner()
	return ok
}

// Winner returns the successful attempt. Dispatch stops at the first
// success, so it can only be the last attempt.
func (r DispatchResult) Winner() (InvocationAttempt, bool) {
	if n := len(r.Attempts); n > 0 && r.Attempts[n-1].Succeeded() {
		return r.Attempts[n-1], true
	}
	return InvocationAttempt{}, false
}

// Err returns nil on success, ErrCanceled when the dispatch was interrupted,
// and ErrExhausted otherwise.
func (r DispatchResult) Err() error {
	switch {
	case r.Succeeded():
		return nil
	case r.Canceled:
		return NewDomainError("Dispatch", ErrCanceled, "dispatch canceled")
	default:
		return NewDomainError("Dispatch", ErrExhausted, "")
	}
}
