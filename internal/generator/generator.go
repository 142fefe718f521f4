// Package generator turns a section and a client into finished section text
// by running the section's evidence through its published flow.
package generator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"icdeck/internal/evidence"
	"icdeck/internal/faults"
	"icdeck/internal/flow"
	"icdeck/internal/logging"
	"icdeck/internal/sections"
)

// Handles resolves a section to its published flow.
type Handles interface {
	Handle(ctx context.Context, sectionID string) (flow.Handle, error)
}

type Aggregator interface {
	Aggregate(ctx context.Context, sec sections.Section, clientID string) evidence.Bundle
}

type Executor interface {
	Execute(ctx context.Context, h flow.Handle, input string) (string, error)
}

// SectionResult is the generated text of one section plus what went into it.
type SectionResult struct {
	SectionID    string
	Title        string
	FlowName     string
	ClientID     string
	Text         string
	Bundle       evidence.Bundle
	PayloadBytes int
	Duration     time.Duration
}

type SectionGenerator struct {
	catalog    *sections.Catalog
	handles    Handles
	aggregator Aggregator
	executor   Executor
	logger     *zap.Logger
	tracer     trace.Tracer
}

type Option func(*SectionGenerator)

func WithLogger(l *zap.Logger) Option {
	return func(g *SectionGenerator) { g.logger = logging.OrNop(l) }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *SectionGenerator) { g.tracer = t }
}

func NewSectionGenerator(catalog *sections.Catalog, handles Handles, aggregator Aggregator, executor Executor, opts ...Option) *SectionGenerator {
	g := &SectionGenerator{
		catalog:    catalog,
		handles:    handles,
		aggregator: aggregator,
		executor:   executor,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("icdeck/internal/generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate aggregates evidence for the section, runs the section's flow on the
// serialized bundle and returns the flow output verbatim. The flow handle is
// resolved before any retrieval; a missing handle is a configuration error.
// An empty bundle is not an error.
func (g *SectionGenerator) Generate(ctx context.Context, sectionID, clientID string) (SectionResult, error) {
	ctx, span := g.tracer.Start(ctx, "generator.Generate", trace.WithAttributes(
		attribute.String("section.id", sectionID),
		attribute.String("client.id", clientID),
	))
	defer span.End()

	res, err := g.generate(ctx, sectionID, clientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SectionResult{}, err
	}
	span.SetAttributes(
		attribute.Int("evidence.items", len(res.Bundle.Items)),
		attribute.Int("output.bytes", len(res.Text)),
	)
	return res, nil
}

func (g *SectionGenerator) generate(ctx context.Context, sectionID, clientID string) (SectionResult, error) {
	started := time.Now()

	if clientID == "" {
		return SectionResult{}, faults.Configuration("generator.Generate", "client id is empty")
	}
	sec, ok := g.catalog.Get(sectionID)
	if !ok {
		return SectionResult{}, faults.Configuration("generator.Generate", "unknown section %q", sectionID)
	}
	h, err := g.handles.Handle(ctx, sectionID)
	if err != nil {
		return SectionResult{}, fmt.Errorf("failed to resolve flow for section %s: %w", sectionID, err)
	}

	bundle := g.aggregator.Aggregate(ctx, sec, clientID)
	payload, err := bundle.Payload()
	if err != nil {
		return SectionResult{}, fmt.Errorf("failed to serialize evidence for section %s: %w", sectionID, err)
	}

	text, err := g.executor.Execute(ctx, h, payload)
	if err != nil {
		return SectionResult{}, fmt.Errorf("failed to generate section %s for client %s: %w", sectionID, clientID, err)
	}

	res := SectionResult{
		SectionID:    sec.ID,
		Title:        sec.Title,
		FlowName:     sec.FlowName,
		ClientID:     clientID,
		Text:         text,
		Bundle:       bundle,
		PayloadBytes: len(payload),
		Duration:     time.Since(started),
	}
	g.logger.Info("section generated",
		zap.String("section", sec.ID),
		zap.String("client", clientID),
		zap.Int("evidence_items", len(bundle.Items)),
		zap.Int("failed_queries", len(bundle.Failures)),
		zap.Int("output_bytes", len(text)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// GenerateAll runs every catalog section for one client, sequentially and in
// catalog order. The first error aborts the client.
func (g *SectionGenerator) GenerateAll(ctx context.Context, clientID string) ([]SectionResult, error) {
	ids := g.catalog.IDs()
	out := make([]SectionResult, 0, len(ids))
	for _, id := range ids {
		res, err := g.Generate(ctx, id, clientID)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}
