package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"unisearch/internal/domain"
	"unisearch/internal/infra/config"
	"unisearch/internal/infra/tracer"
)

const (
	defaultMaxFailures    = 5
	defaultBreakerTimeout = 30 * time.Second
)

// Scorer scores a single subject. Implemented by Analyzer.
type Scorer interface {
	Score(ctx context.Context, s domain.Subject) (domain.Score, error)
}

// Report is the outcome of a batch. Scored is ordered by score, highest first.
type Report struct {
	Scored []domain.Score        `json:"scored"`
	Failed []domain.ScoreFailure `json:"failed"`
}

// Batch scores subjects one at a time, paced by a rate limiter and guarded
// by a circuit breaker. A subject failure never aborts the batch.
type Batch struct {
	scorer  Scorer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[domain.Score]
	logger  *slog.Logger
}

// NewBatch wraps s using the pacing and breaker settings in cfg.
func NewBatch(s Scorer, cfg config.ScorerConfig, logger *slog.Logger) *Batch {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	maxFailures := uint32(defaultMaxFailures)
	if cfg.Breaker.MaxFailures > 0 {
		maxFailures = uint32(cfg.Breaker.MaxFailures)
	}
	timeout := cfg.Breaker.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[domain.Score](gobreaker.Settings{
		Name:        "scorer",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A verdict with missing fields means the analyzer ran; only process
		// failures count toward tripping.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrScorerOutput)
		},
	})

	return &Batch{
		scorer:  s,
		limiter: rate.NewLimiter(limit, 1),
		breaker: cb,
		logger:  logger,
	}
}

// Run scores every subject in order and returns the combined report.
func (b *Batch) Run(ctx context.Context, subjects []domain.Subject) Report {
	report := Report{
		Scored: []domain.Score{},
		Failed: []domain.ScoreFailure{},
	}
	for _, s := range subjects {
		score, err := b.scoreOne(ctx, s)
		if err != nil {
			b.logger.Warn("subject scoring failed", "subject", s.ID, "error", err)
			report.Failed = append(report.Failed, domain.ScoreFailure{
				SubjectID: s.ID,
				Name:      s.Name,
				Error:     err.Error(),
			})
			continue
		}
		b.logger.Info("subject scored", "subject", s.ID, "score", score.Value, "verdict", score.Verdict)
		report.Scored = append(report.Scored, score)
	}
	sort.SliceStable(report.Scored, func(i, j int) bool {
		return report.Scored[i].Value > report.Scored[j].Value
	})
	return report
}

func (b *Batch) scoreOne(ctx context.Context, s domain.Subject) (domain.Score, error) {
	ctx, span := tracer.StartSpan(ctx, "scorer.subject",
		trace.WithAttributes(tracer.StringAttr("subject.id", s.ID)),
	)
	defer span.End()

	if err := b.limiter.Wait(ctx); err != nil {
		err = domain.NewDomainError("Scorer.Batch", domain.ErrCanceled, fmt.Sprintf("%s: %v", s.ID, err))
		tracer.RecordError(span, err)
		return domain.Score{}, err
	}

	score, err := b.breaker.Execute(func() (domain.Score, error) {
		return b.scorer.Score(ctx, s)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = domain.NewDomainError("Scorer.Batch", domain.ErrExecutionFailure,
				fmt.Sprintf("%s: scorer circuit open: %v", s.ID, err))
		}
		tracer.RecordError(span, err)
		return domain.Score{}, err
	}
	span.SetAttributes(tracer.StringAttr("subject.verdict", score.Verdict))
	tracer.SetOK(span)
	return score, nil
}

// State reports the breaker state.
func (b *Batch) State() gobreaker.State {
	return b.breaker.State()
}
