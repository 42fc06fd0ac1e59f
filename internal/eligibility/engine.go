package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dukerupert/govgrant/internal/metrics"
	"github.com/dukerupert/govgrant/internal/model"
)

var tracer = otel.Tracer("govgrant.eligibility")

// HouseholdLister supplies households with their members populated, in a
// stable order.
type HouseholdLister interface {
	List(ctx context.Context) ([]model.Household, error)
}

// Engine runs eligibility queries against a repository snapshot.
type Engine struct {
	households HouseholdLister
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Engine)

// WithClock overrides the source of "today" used for age cutoffs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(households HouseholdLister, opts ...Option) *Engine {
	e := &Engine{
		households: households,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns every household satisfying c. An empty result is not an error.
func (e *Engine) Query(ctx context.Context, c Criteria) ([]model.Household, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "eligibility.Query")
	defer span.End()

	households, err := e.households.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list households")
		e.metrics.ObserveFilter(start, 0, err)
		return nil, fmt.Errorf("list households: %w", err)
	}

	matched := Filter(households, c, e.now())

	span.SetAttributes(
		attribute.Int("households.scanned", len(households)),
		attribute.Int("households.matched", len(matched)),
	)
	e.metrics.ObserveFilter(start, len(matched), nil)
	criteria := "none"
	if !c.IsZero() {
		criteria = c.Values().Encode()
	}
	e.logger.DebugContext(ctx, "eligibility query",
		"criteria", criteria,
		"scanned", len(households),
		"matched", len(matched),
		"duration", time.Since(start),
	)
	return matched, nil
}
