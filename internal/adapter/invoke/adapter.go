package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"unisearch/internal/domain"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 4 << 20
	defaultKillGrace      = 2 * time.Second
)

// Response is the raw result of one transport call.
type Response struct {
	Output     string // stdout, or the response body
	Diagnostic string // stderr, or the body of a failed HTTP call
	Status     int    // exit status or HTTP status code
	OK         bool   // the transport's own success indicator
	Truncated  bool
}

// Transport performs exactly one call to a provider. It must honour ctx.
type Transport interface {
	Call(ctx context.Context, spec domain.ProviderSpec, params domain.Params) (Response, error)
}

// Options tune the built-in transports.
type Options struct {
	MaxOutputBytes int
	KillGrace      time.Duration
	DefaultTimeout time.Duration
	HTTPClient     *http.Client
}

// Adapter turns a provider spec and a query into one classified attempt.
type Adapter struct {
	transports     map[domain.TransportKind]Transport
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// New creates an Adapter with the exec, http and mcp transports.
func New(opts Options, logger *slog.Logger) *Adapter {
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return NewWithTransports(opts.DefaultTimeout, logger, map[domain.TransportKind]Transport{
		domain.TransportExec: NewExecTransport(opts.MaxOutputBytes, opts.KillGrace),
		domain.TransportHTTP: NewHTTPTransport(opts.HTTPClient, opts.MaxOutputBytes),
		domain.TransportMCP:  NewMCPTransport(logger),
	})
}

// NewWithTransports creates an Adapter with explicit transports.
func NewWithTransports(defaultTO time.Duration, logger *slog.Logger, transports map[domain.TransportKind]Transport) *Adapter {
	if defaultTO <= 0 {
		defaultTO = defaultTimeout
	}
	return &Adapter{
		transports:     transports,
		defaultTimeout: defaultTO,
		logger:         logger,
	}
}

type callResult struct {
	resp Response
	err  error
}

// Invoke performs one bounded call to spec and classifies the result.
// It never retries and returns as soon as timeout elapses, whether or not the
// transport has finished unwinding.
func (a *Adapter) Invoke(ctx context.Context, spec domain.ProviderSpec, q domain.Query, timeout time.Duration) domain.InvocationAttempt {
	start := time.Now()
	attempt := a.invoke(ctx, spec, q, timeout)
	attempt.Duration = time.Since(start)
	return attempt
}

func (a *Adapter) invoke(ctx context.Context, spec domain.ProviderSpec, q domain.Query, timeout time.Duration) domain.InvocationAttempt {
	params := domain.ResolveParams(q, spec)
	attempt := domain.InvocationAttempt{
		Provider:   spec.ID,
		Mode:       params.Mode(),
		ExitStatus: -1,
	}

	t, ok := a.transports[spec.Invocation.Kind]
	if !ok {
		return fail(attempt, fmt.Sprintf("unsupported transport %q", spec.Invocation.Kind))
	}
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a.logger.Debug("invoking provider",
		"provider", spec.ID,
		"transport", spec.Invocation.Kind,
		"mode", params.Mode(),
		"timeout", timeout)

	done := make(chan callResult, 1)
	go func() {
		resp, err := t.Call(callCtx, spec, params)
		done <- callResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		// A call that failed because its context ended is an interruption,
		// not a provider failure.
		if callCtx.Err() != nil && (r.err != nil || !r.resp.OK) {
			return interrupted(ctx, attempt, timeout)
		}
		return classify(attempt, spec.Invocation.Kind, r.resp, r.err)
	case <-callCtx.Done():
		return interrupted(ctx, attempt, timeout)
	}
}

// interrupted classifies an attempt whose context ended before the call did.
func interrupted(parent context.Context, attempt domain.InvocationAttempt, timeout time.Duration) domain.InvocationAttempt {
	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		return fail(attempt, "canceled")
	}
	attempt.Outcome = domain.OutcomeTimeout
	attempt.Detail = fmt.Sprintf("%s: timed out after %s", attempt.Provider, timeout)
	return attempt
}

func classify(attempt domain.InvocationAttempt, kind domain.TransportKind, resp Response, err error) domain.InvocationAttempt {
	attempt.ExitStatus = resp.Status
	attempt.Truncated = resp.Truncated
	if err != nil {
		return fail(attempt, err.Error())
	}
	if !resp.OK {
		detail := strings.TrimSpace(resp.Diagnostic)
		if detail == "" {
			detail = strings.TrimSpace(resp.Output)
		}
		if detail == "" {
			detail = genericFailure(kind, resp.Status)
		}
		return fail(attempt, detail)
	}
	out := strings.TrimSpace(resp.Output)
	if out == "" {
		return fail(attempt, "produced no output")
	}
	attempt.Outcome = domain.OutcomeSuccess
	attempt.Output = out
	return attempt
}

func genericFailure(kind domain.TransportKind, status int) string {
	switch kind {
	case domain.TransportHTTP:
		return fmt.Sprintf("http status %d", status)
	case domain.TransportMCP:
		return "tool call reported an error"
	default:
		return fmt.Sprintf("exited with status %d", status)
	}
}

func fail(attempt domain.InvocationAttempt, detail string) domain.InvocationAttempt {
	attempt.Outcome = domain.OutcomeExecutionFailure
	attempt.Detail = attempt.Provider + ": " + detail
	return attempt
}
