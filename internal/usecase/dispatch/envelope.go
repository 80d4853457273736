package dispatch

import (
	"errors"

	"unisearch/internal/domain"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Envelope is the uniform response shape for one dispatch.
type Envelope struct {
	Status     string           `json:"status"`
	ExitCode   int              `json:"exit_code"`
	Mode       domain.Mode      `json:"mode"`
	DispatchID string           `json:"dispatch_id,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	RawOutput  string           `json:"raw_output,omitempty"`
	Truncated  bool             `json:"truncated,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  domain.ErrorCode `json:"error_code,omitempty"`
	Attempts   []AttemptSummary `json:"attempts"`
}

// AttemptSummary is one attempt as reported to callers.
type AttemptSummary struct {
	Provider    string         `json:"provider"`
	Outcome     domain.Outcome `json:"outcome"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// BuildEnvelope wraps a finished dispatch. On success the envelope carries
// the winning provider and its raw output; on failure it carries the error.
// Both list every attempt in the order tried.
func BuildEnvelope(result domain.DispatchResult) Envelope {
	env := Envelope{
		Mode:       result.Query.Mode,
		DispatchID: result.ID,
		Attempts:   Summarize(result.Attempts),
	}
	if winner, ok := result.Winner(); ok {
		env.Status = StatusSuccess
		env.ExitCode = 0
		env.Mode = winner.Mode
		env.Provider = winner.Provider
		env.RawOutput = winner.Output
		env.Truncated = winner.Truncated
		return env
	}

	err := result.Err()
	env.Status = StatusFailure
	env.ExitCode = 1
	env.Error = failureMessage(err)
	env.ErrorCode = domain.ErrorCodeOf(err)
	return env
}

// ValidationEnvelope reports input rejected before any provider ran.
func ValidationEnvelope(err error, mode domain.Mode) Envelope {
	m, perr := domain.ParseMode(string(mode))
	if perr != nil {
		m = domain.ModeDefault
	}
	return Envelope{
		Status:    StatusFailure,
		ExitCode:  1,
		Mode:      m,
		Error:     err.Error(),
		ErrorCode: domain.ErrorCodeOf(err),
		Attempts:  []AttemptSummary{},
	}
}

// Summarize converts attempts to their reported form. The result is never nil.
func Summarize(attempts []domain.InvocationAttempt) []AttemptSummary {
	out := make([]AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptSummary{
			Provider:    a.Provider,
			Outcome:     a.Outcome,
			ErrorDetail: a.Detail,
			DurationMS:  a.Duration.Milliseconds(),
		})
	}
	return out
}

func failureMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	if errors.Is(err, domain.ErrExhausted) {
		return domain.ErrExhausted.Error()
	}
	return err.Error()
}
