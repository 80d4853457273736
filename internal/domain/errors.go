package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Wrap them in a DomainError to attach operation context.
var (
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrExecutionFailure = fmt.Errorf("provider execution failed")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrCanceled         = fmt.Errorf("operation canceled")
	ErrExhausted        = fmt.Errorf("all providers failed")
)

// Sentinel errors for specific subsystems.
var (
	// ErrUnknownProvider is an input validation failure: errors.Is(err, ErrInvalidInput) holds.
	ErrUnknownProvider = fmt.Errorf("unknown provider: %w", ErrInvalidInput)

	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
	ErrScorerOutput = fmt.Errorf("scorer output missing required fields")
	ErrHistoryStore = fmt.Errorf("history store operation failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Lookup")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsValidationError reports whether err should be surfaced to the caller
// before any provider is attempted.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// ErrorCode is a machine-parseable error category for callers and logs.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeUnknownProvider  ErrorCode = "UNKNOWN_PROVIDER"
	CodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeExhausted        ErrorCode = "EXHAUSTED"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeScorerOutput     ErrorCode = "SCORER_OUTPUT"
	CodeHistoryStore     ErrorCode = "HISTORY_STORE"
)

// codeOrder lists sentinels from most to least specific. ErrUnknownProvider
// must precede ErrInvalidInput because it wraps it.
var codeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnknownProvider, CodeUnknownProvider},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTimeout, CodeTimeout},
	{ErrCanceled, CodeCanceled},
	{ErrExecutionFailure, CodeExecutionFailure},
	{ErrExhausted, CodeExhausted},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrScorerOutput, CodeScorerOutput},
	{ErrHistoryStore, CodeHistoryStore},
}

// ErrorCodeOf returns the ErrorCode for err, or CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range codeOrder {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
