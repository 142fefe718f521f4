package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	smithydocument "github.com/aws/smithy-go/document"
)

// RuntimeAPI is the subset of the Bedrock Agent Runtime client used to run
// flows.
type RuntimeAPI interface {
	InvokeFlow(ctx context.Context, in *bedrockagentruntime.InvokeFlowInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeFlowOutput, error)
}

// BedrockInvoker implements Invoker on the Bedrock Agent Runtime.
type BedrockInvoker struct {
	api RuntimeAPI
}

var _ Invoker = (*BedrockInvoker)(nil)

func NewBedrockInvoker(api RuntimeAPI) *BedrockInvoker {
	return &BedrockInvoker{api: api}
}

func (b *BedrockInvoker) Invoke(ctx context.Context, h Handle, inputNode, inputPort, doc string) (EventStream, error) {
	out, err := b.api.InvokeFlow(ctx, &bedrockagentruntime.InvokeFlowInput{
		FlowIdentifier:      aws.String(h.FlowID),
		FlowAliasIdentifier: aws.String(h.AliasID),
		Inputs: []types.FlowInput{{
			Content:        &types.FlowInputContentMemberDocument{Value: document.NewLazyDocument(doc)},
			NodeName:       aws.String(inputNode),
			NodeOutputName: aws.String(inputPort),
		}},
	})
	if err != nil {
		return nil, err
	}
	return newEventStream(out.GetStream()), nil
}

type sdkStream interface {
	Events() <-chan types.FlowResponseStream
	Close() error
	Err() error
}

// eventStream decodes SDK events onto its own channel until the SDK stream
// ends or Close is called.
type eventStream struct {
	src    sdkStream
	events chan Event
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
	decErr error
}

func newEventStream(src sdkStream) *eventStream {
	s := &eventStream{
		src:    src,
		events: make(chan Event),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *eventStream) pump() {
	// done closes before events: Err after a drained Events reports decErr.
	defer close(s.events)
	defer close(s.done)
	for raw := range s.src.Events() {
		ev, err := decodeEvent(raw)
		if err != nil {
			s.decErr = err
			return
		}
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}

func (s *eventStream) Events() <-chan Event {
	return s.events
}

func (s *eventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.src.Close()
		<-s.done
	})
	return err
}

func (s *eventStream) Err() error {
	select {
	case <-s.done:
		if s.decErr != nil {
			return s.decErr
		}
	default:
	}
	return s.src.Err()
}

func decodeEvent(raw types.FlowResponseStream) (Event, error) {
	switch v := raw.(type) {
	case *types.FlowResponseStreamMemberFlowOutputEvent:
		ev := Event{Kind: EventOutput, NodeName: aws.ToString(v.Value.NodeName)}
		content, ok := v.Value.Content.(*types.FlowOutputContentMemberDocument)
		if !ok {
			return ev, nil
		}
		text, err := documentText(content.Value)
		if err != nil {
			return Event{}, fmt.Errorf("failed to decode flow output: %w", err)
		}
		ev.Document = text
		return ev, nil
	case *types.FlowResponseStreamMemberFlowCompletionEvent:
		return Event{Kind: EventCompletion, Reason: string(v.Value.CompletionReason)}, nil
	default:
		return Event{Kind: EventOther}, nil
	}
}

// documentText returns a string document as-is and any other document as JSON.
func documentText(doc smithydocument.Unmarshaler) (string, error) {
	if doc == nil {
		return "", nil
	}
	var s string
	if err := doc.UnmarshalSmithyDocument(&s); err == nil {
		return s, nil
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return "", err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
