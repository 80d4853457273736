package dispatch

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"unisearch/internal/domain"
	"unisearch/internal/infra/tracer"
)

const defaultAttemptTimeout = 30 * time.Second

// Registry resolves providers. Implemented by provider.Registry.
type Registry interface {
	Lookup(id string) (domain.ProviderSpec, error)
	Chain() []domain.ProviderSpec
}

// Invoker performs one bounded provider call. Implemented by invoke.Adapter.
type Invoker interface {
	Invoke(ctx context.Context, spec domain.ProviderSpec, q domain.Query, timeout time.Duration) domain.InvocationAttempt
}

// Recorder persists finished dispatches.
type Recorder interface {
	Record(ctx context.Context, result domain.DispatchResult) error
}

// Deps holds the Dispatcher's collaborators.
type Deps struct {
	Registry       Registry
	Invoker        Invoker
	DefaultTimeout time.Duration // per-attempt timeout when a provider sets none
	Logger         *slog.Logger
	Recorder       Recorder               // optional, nil = no history
	NewID          func(time.Time) string // optional, defaults to a ULID
	Now            func() time.Time       // optional, defaults to time.Now
}

// Request is one caller request. An empty Provider means auto.
type Request struct {
	Query    domain.Query
	Provider string
}

// Dispatcher routes a query to one provider, or down the fallback chain
// until a provider succeeds.
type Dispatcher struct {
	deps Deps
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	if deps.DefaultTimeout <= 0 {
		deps.DefaultTimeout = defaultAttemptTimeout
	}
	if deps.NewID == nil {
		deps.NewID = newDispatchID
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{deps: deps}
}

// Dispatch runs req to a terminal result. The returned error is non-nil only
// for invalid input, in which case no provider was invoked. Provider
// failures are reported through the result's attempt log.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (domain.DispatchResult, error) {
	if err := req.Query.Validate(); err != nil {
		return domain.DispatchResult{}, err
	}

	selection := strings.TrimSpace(req.Provider)
	if selection == "" {
		selection = domain.SelectionAuto
	}

	var candidates []domain.ProviderSpec
	if selection == domain.SelectionAuto {
		candidates = d.deps.Registry.Chain()
	} else {
		spec, err := d.deps.Registry.Lookup(selection)
		if err != nil {
			return domain.DispatchResult{}, err
		}
		candidates = []domain.ProviderSpec{spec}
	}

	start := d.deps.Now()
	result := domain.DispatchResult{
		ID:        d.deps.NewID(start),
		Selection: selection,
		Query:     req.Query,
		StartedAt: start,
		Attempts:  make([]domain.InvocationAttempt, 0, len(candidates)),
	}

	ctx, span := tracer.StartSpan(ctx, "dispatch",
		trace.WithAttributes(
			tracer.StringAttr("dispatch.id", result.ID),
			tracer.StringAttr("dispatch.selection", selection),
			tracer.StringAttr("dispatch.mode", string(req.Query.Mode)),
		),
	)
	defer span.End()

	for i, spec := range candidates {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		attempt := d.try(ctx, spec, req.Query)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Succeeded() {
			break
		}
		if i < len(candidates)-1 {
			d.deps.Logger.Warn("provider failed, trying next",
				"dispatch_id", result.ID,
				"provider", spec.ID,
				"next", candidates[i+1].ID,
				"outcome", attempt.Outcome,
				"error", attempt.Err())
		} else {
			d.deps.Logger.Warn("provider failed",
				"dispatch_id", result.ID,
				"provider", spec.ID,
				"outcome", attempt.Outcome,
				"error", attempt.Err())
		}
	}
	if !result.Succeeded() && ctx.Err() != nil {
		result.Canceled = true
	}
	result.Duration = d.deps.Now().Sub(start)

	span.SetAttributes(
		tracer.IntAttr("dispatch.attempts", len(result.Attempts)),
		tracer.BoolAttr("dispatch.canceled", result.Canceled),
	)
	if err := result.Err(); err != nil {
		span.SetAttributes(tracer.StringAttr("dispatch.status", "failure"))
		tracer.RecordError(span, err)
		d.deps.Logger.Error("dispatch failed",
			"dispatch_id", result.ID,
			"selection", selection,
			"attempts", len(result.Attempts),
			"error", err)
	} else {
		winner, _ := result.Winner()
		span.SetAttributes(
			tracer.StringAttr("dispatch.status", "success"),
			tracer.StringAttr("dispatch.provider", winner.Provider),
		)
		tracer.SetOK(span)
		d.deps.Logger.Info("dispatch succeeded",
			"dispatch_id", result.ID,
			"provider", winner.Provider,
			"attempts", len(result.Attempts),
			"duration", result.Duration)
	}

	d.record(ctx, result)
	return result, nil
}

func (d *Dispatcher) try(ctx context.Context, spec domain.ProviderSpec, q domain.Query) domain.InvocationAttempt {
	ctx, span := tracer.StartSpan(ctx, "dispatch.attempt",
		trace.WithAttributes(tracer.StringAttr("provider", spec.ID)),
	)
	defer span.End()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = d.deps.DefaultTimeout
	}
	attempt := d.deps.Invoker.Invoke(ctx, spec, q, timeout)

	span.SetAttributes(
		tracer.StringAttr("outcome", string(attempt.Outcome)),
		tracer.DurationAttr("duration_ms", attempt.Duration),
	)
	if err := attempt.Err(); err != nil {
		tracer.RecordError(span, err)
	} else {
		tracer.SetOK(span)
	}
	return attempt
}

func (d *Dispatcher) record(ctx context.Context, result domain.DispatchResult) {
	if d.deps.Recorder == nil {
		return
	}
	// History must be written even when the dispatch itself was canceled.
	if err := d.deps.Recorder.Record(context.WithoutCancel(ctx), result); err != nil {
		d.deps.Logger.Warn("failed to record dispatch", "dispatch_id", result.ID, "error", err)
	}
}

func newDispatchID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
