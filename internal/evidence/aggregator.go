package evidence

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"icdeck/internal/logging"
	"icdeck/internal/sections"
)

// Aggregator runs a section's queries against a Store and merges the results.
type Aggregator struct {
	store    Store
	logger   *zap.Logger
	tracer   trace.Tracer
	parallel int
}

type Option func(*Aggregator)

// WithLogger sets the logger used for skipped queries.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = logging.OrNop(l) }
}

// WithParallelism lets up to n queries of one section run at once. The merged
// order does not depend on n.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallel = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

func NewAggregator(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("icdeck/internal/evidence"),
		parallel: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate issues one retrieval per query of sec, scoped to clientID. Failed
// queries are logged and recorded on the bundle; they never fail the bundle.
// Cancellation of ctx surfaces as failures of the queries it interrupted.
func (a *Aggregator) Aggregate(ctx context.Context, sec sections.Section, clientID string) Bundle {
	ctx, span := a.tracer.Start(ctx, "evidence.Aggregate", trace.WithAttributes(
		attribute.String("section.id", sec.ID),
		attribute.String("client.id", clientID),
		attribute.Int("queries", len(sec.Queries)),
	))
	defer span.End()

	results := make([][]Item, len(sec.Queries))
	errs := make([]error, len(sec.Queries))

	if a.parallel <= 1 || len(sec.Queries) <= 1 {
		for i, q := range sec.Queries {
			results[i], errs[i] = a.store.Retrieve(ctx, q, clientID)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(a.parallel, len(sec.Queries)))
		for i, q := range sec.Queries {
			i, q := i, q
			g.Go(func() error {
				// Per-query errors stay in errs so one failure never cancels the rest.
				results[i], errs[i] = a.store.Retrieve(gctx, q, clientID)
				return nil
			})
		}
		_ = g.Wait()
	}

	b := Bundle{SectionID: sec.ID, ClientID: clientID, Queries: len(sec.Queries)}
	for i, err := range errs {
		if err == nil {
			continue
		}
		results[i] = nil
		b.Failures = append(b.Failures, QueryFailure{Query: sec.Queries[i], Error: err.Error()})
		a.logger.Warn("evidence query failed, skipping",
			zap.String("section", sec.ID),
			zap.String("client", clientID),
			zap.String("query", sec.Queries[i]),
			zap.Error(err))
	}
	b.Items, b.Hits = merge(results)

	span.SetAttributes(
		attribute.Int("items", len(b.Items)),
		attribute.Int("failed_queries", len(b.Failures)),
	)
	if b.Empty() {
		a.logger.Info("no evidence found",
			zap.String("section", sec.ID),
			zap.String("client", clientID))
	}
	return b
}
