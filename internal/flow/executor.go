package flow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"icdeck/internal/faults"
)

// ErrNoOutput is returned when a flow's event stream ends without an output
// event.
var ErrNoOutput = errors.New("flow produced no output")

// EventKind classifies events read from a flow invocation.
type EventKind int

const (
	EventOther EventKind = iota
	EventOutput
	EventCompletion
)

// Event is one decoded event of a flow invocation stream.
type Event struct {
	Kind     EventKind
	NodeName string
	Document string
	Reason   string
}

// EventStream is an open flow invocation. Events is closed when the stream
// ends; Err reports a transport failure after that.
type EventStream interface {
	Events() <-chan Event
	Close() error
	Err() error
}

// Invoker starts a flow invocation with a single document input.
type Invoker interface {
	Invoke(ctx context.Context, h Handle, inputNode, inputPort, document string) (EventStream, error)
}

// Executor runs a published flow and returns its output document.
type Executor struct {
	invoker Invoker
	tracer  trace.Tracer
}

func NewExecutor(invoker Invoker) *Executor {
	return &Executor{invoker: invoker, tracer: otel.Tracer("icdeck/internal/flow")}
}

// WithTracer returns a copy of the executor that records spans on t.
func (e *Executor) WithTracer(t trace.Tracer) *Executor {
	cp := *e
	cp.tracer = t
	return &cp
}

// Execute sends input to the flow's "document" node and reads the stream
// until the first output event or completion. There is no retry; callers
// bound latency through ctx.
func (e *Executor) Execute(ctx context.Context, h Handle, input string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "flow.Execute", trace.WithAttributes(
		attribute.String("flow.id", h.FlowID),
		attribute.String("flow.alias_id", h.AliasID),
		attribute.Int("input.bytes", len(input)),
	))
	defer span.End()

	text, err := e.execute(ctx, h, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("output.bytes", len(text)))
	return text, nil
}

func (e *Executor) execute(ctx context.Context, h Handle, input string) (string, error) {
	if !h.Valid() {
		return "", faults.Configuration("flow.Execute", "invalid flow handle %+v", h)
	}

	stream, err := e.invoker.Invoke(ctx, h, InputNodeName, DocumentPort, input)
	if err != nil {
		return "", faults.Transient("flow.Execute", fmt.Errorf("failed to invoke flow %s: %w", h.FlowID, err))
	}
	defer stream.Close()

	var (
		output string
		got    bool
		reason string
	)
read:
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				break read
			}
			switch ev.Kind {
			case EventOutput:
				if !got {
					output, got = ev.Document, true
				}
			case EventCompletion:
				reason = ev.Reason
				break read
			}
		}
	}

	if err := stream.Err(); err != nil {
		return "", faults.Transient("flow.Execute", fmt.Errorf("flow %s stream failed: %w", h.FlowID, err))
	}
	if !got {
		if reason != "" {
			return "", fmt.Errorf("%w (completion reason %s)", ErrNoOutput, reason)
		}
		return "", ErrNoOutput
	}
	return output, nil
}
