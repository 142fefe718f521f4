package flow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	rttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icdeck/internal/faults"
)

type fakeAgentAPI struct {
	flowPages  []*bedrockagent.ListFlowsOutput
	aliasPages []*bedrockagent.ListFlowAliasesOutput
	statuses   []agenttypes.FlowStatus
	stored     *agenttypes.FlowDefinition

	created *bedrockagent.CreateFlowInput
	updated *bedrockagent.UpdateFlowInput
	alias   *bedrockagent.CreateFlowAliasInput
	routed  *bedrockagent.UpdateFlowAliasInput
}

func page(token *string) int {
	if token == nil {
		return 0
	}
	return int(aws.ToString(token)[0] - '0')
}

func (f *fakeAgentAPI) ListFlows(_ context.Context, in *bedrockagent.ListFlowsInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListFlowsOutput, error) {
	return f.flowPages[page(in.NextToken)], nil
}

func (f *fakeAgentAPI) ListFlowAliases(_ context.Context, in *bedrockagent.ListFlowAliasesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListFlowAliasesOutput, error) {
	if len(f.aliasPages) == 0 {
		return &bedrockagent.ListFlowAliasesOutput{}, nil
	}
	return f.aliasPages[page(in.NextToken)], nil
}

func (f *fakeAgentAPI) CreateFlow(_ context.Context, in *bedrockagent.CreateFlowInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowOutput, error) {
	f.created = in
	f.stored = in.Definition
	return &bedrockagent.CreateFlowOutput{Id: aws.String("FLOWNEW")}, nil
}

func (f *fakeAgentAPI) UpdateFlow(_ context.Context, in *bedrockagent.UpdateFlowInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.UpdateFlowOutput, error) {
	f.updated = in
	f.stored = in.Definition
	return &bedrockagent.UpdateFlowOutput{}, nil
}

func (f *fakeAgentAPI) GetFlow(_ context.Context, _ *bedrockagent.GetFlowInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetFlowOutput, error) {
	out := &bedrockagent.GetFlowOutput{Definition: f.stored}
	if len(f.statuses) > 0 {
		out.Status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return out, nil
}

func (f *fakeAgentAPI) PrepareFlow(_ context.Context, _ *bedrockagent.PrepareFlowInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.PrepareFlowOutput, error) {
	return &bedrockagent.PrepareFlowOutput{}, nil
}

func (f *fakeAgentAPI) CreateFlowVersion(_ context.Context, _ *bedrockagent.CreateFlowVersionInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowVersionOutput, error) {
	return &bedrockagent.CreateFlowVersionOutput{Version: aws.String("3")}, nil
}

func (f *fakeAgentAPI) CreateFlowAlias(_ context.Context, in *bedrockagent.CreateFlowAliasInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowAliasOutput, error) {
	f.alias = in
	return &bedrockagent.CreateFlowAliasOutput{Id: aws.String("ALIASNEW")}, nil
}

func (f *fakeAgentAPI) UpdateFlowAlias(_ context.Context, in *bedrockagent.UpdateFlowAliasInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.UpdateFlowAliasOutput, error) {
	f.routed = in
	return &bedrockagent.UpdateFlowAliasOutput{}, nil
}

func TestBedrockService_LookupPaginates(t *testing.T) {
	api := &fakeAgentAPI{
		flowPages: []*bedrockagent.ListFlowsOutput{
			{FlowSummaries: []agenttypes.FlowSummary{{Id: aws.String("F0"), Name: aws.String("other_flow")}}, NextToken: aws.String("1")},
			{FlowSummaries: []agenttypes.FlowSummary{{Id: aws.String("F1"), Name: aws.String("executive_summary_analysis_flow")}}},
		},
		aliasPages: []*bedrockagent.ListFlowAliasesOutput{
			{FlowAliasSummaries: []agenttypes.FlowAliasSummary{{Id: aws.String("TSTALIASID"), Name: aws.String("TestAlias")}}, NextToken: aws.String("1")},
			{FlowAliasSummaries: []agenttypes.FlowAliasSummary{{Id: aws.String("A1"), Name: aws.String("LATEST")}}},
		},
	}
	svc := NewBedrockService(api, "arn:role", nil)

	res, err := svc.Lookup(context.Background(), "executive_summary_analysis_flow", "LATEST")
	require.NoError(t, err)
	assert.Equal(t, LookupResult{Status: Found, Handle: Handle{FlowID: "F1", AliasID: "A1"}}, res)

	res, err = svc.Lookup(context.Background(), "missing_flow", "LATEST")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)

	res, err = svc.Lookup(context.Background(), "other_flow", "PROD")
	require.NoError(t, err)
	assert.Equal(t, AliasMissing, res.Status)
	assert.Equal(t, "F0", res.Handle.FlowID)
}

func TestBedrockService_DefinitionRoundTrip(t *testing.T) {
	api := &fakeAgentAPI{}
	svc := NewBedrockService(api, "arn:role", nil)
	def := NewDefinition("financial_overview", samplePrompt, DefaultInference())

	id, err := svc.Create(context.Background(), Spec{Name: "financial_overview_analysis_flow", Description: "d", Definition: def})
	require.NoError(t, err)
	assert.Equal(t, "FLOWNEW", id)
	assert.Equal(t, "arn:role", aws.ToString(api.created.ExecutionRoleArn))
	assert.NotEmpty(t, aws.ToString(api.created.ClientToken))

	got, err := svc.GetDefinition(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, def, got)

	fp, err := got.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(samplePrompt), fp)
}

func TestBedrockService_PublishCalls(t *testing.T) {
	api := &fakeAgentAPI{}
	svc := NewBedrockService(api, "arn:role", nil)

	aliasID, err := svc.CreateAlias(context.Background(), "F1", "LATEST", "1")
	require.NoError(t, err)
	assert.Equal(t, "ALIASNEW", aliasID)
	assert.Equal(t, "1", aws.ToString(api.alias.RoutingConfiguration[0].FlowVersion))

	require.NoError(t, svc.UpdateAlias(context.Background(), "F1", "A1", "LATEST", "3"))
	assert.Equal(t, "A1", aws.ToString(api.routed.AliasIdentifier))
	assert.Equal(t, "3", aws.ToString(api.routed.RoutingConfiguration[0].FlowVersion))
}

func TestBedrockService_PrepareWaits(t *testing.T) {
	api := &fakeAgentAPI{statuses: []agenttypes.FlowStatus{"NotPrepared", "Preparing", "Prepared"}}
	svc := NewBedrockService(api, "arn:role", nil).WithPolling(time.Millisecond, 5)
	require.NoError(t, svc.Prepare(context.Background(), "F1"))

	api = &fakeAgentAPI{statuses: []agenttypes.FlowStatus{"Preparing", "Failed"}}
	svc = NewBedrockService(api, "arn:role", nil).WithPolling(time.Millisecond, 5)
	assert.ErrorContains(t, svc.Prepare(context.Background(), "F1"), "failed to prepare")

	api = &fakeAgentAPI{statuses: []agenttypes.FlowStatus{"Preparing"}}
	svc = NewBedrockService(api, "arn:role", nil).WithPolling(time.Millisecond, 2)
	assert.ErrorContains(t, svc.Prepare(context.Background(), "F1"), "not prepared")
}

type fakeSDKStream struct {
	ch   chan rttypes.FlowResponseStream
	err  error
	open bool
	once sync.Once
}

func (s *fakeSDKStream) Events() <-chan rttypes.FlowResponseStream { return s.ch }
func (s *fakeSDKStream) Err() error                                { return s.err }

// Close mimics the SDK closing its event channel; tests that pre-close ch
// leave it alone.
func (s *fakeSDKStream) Close() error {
	s.once.Do(func() {
		if s.open {
			close(s.ch)
		}
	})
	return nil
}

// jsonDoc decodes its raw JSON into the target, like the SDK's response
// documents do.
type jsonDoc struct {
	document.Interface
	raw string
}

func (d jsonDoc) UnmarshalSmithyDocument(v interface{}) error {
	return json.Unmarshal([]byte(d.raw), v)
}

func TestDocumentText(t *testing.T) {
	text, err := documentText(nil)
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = documentText(jsonDoc{raw: `"1. Financial Highlights"`})
	require.NoError(t, err)
	assert.Equal(t, "1. Financial Highlights", text)

	text, err = documentText(jsonDoc{raw: `{"summary":"ok","pages":3}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok","pages":3}`, text)

	_, err = documentText(jsonDoc{raw: `{`})
	assert.Error(t, err)
}

func TestEventStream_DecodesOutputAndCompletion(t *testing.T) {
	src := &fakeSDKStream{ch: make(chan rttypes.FlowResponseStream, 3)}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowOutputEvent{Value: rttypes.FlowOutputEvent{
		NodeName: aws.String(OutputNodeName),
		Content:  &rttypes.FlowOutputContentMemberDocument{Value: jsonDoc{raw: `"1. Financial Highlights"`}},
	}}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowCompletionEvent{Value: rttypes.FlowCompletionEvent{
		CompletionReason: rttypes.FlowCompletionReason("SUCCESS"),
	}}
	close(src.ch)

	out, err := NewExecutor(&streamInvoker{stream: newEventStream(src)}).Execute(context.Background(), testHandle, "x")
	require.NoError(t, err)
	assert.Equal(t, "1. Financial Highlights", out)
}

func TestEventStream_OutputWithoutDocumentContent(t *testing.T) {
	src := &fakeSDKStream{ch: make(chan rttypes.FlowResponseStream, 1)}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowOutputEvent{Value: rttypes.FlowOutputEvent{
		NodeName: aws.String(OutputNodeName),
		Content:  &rttypes.UnknownUnionMember{Tag: "text"},
	}}
	close(src.ch)

	s := newEventStream(src)
	var got []Event
	for ev := range s.Events() {
		got = append(got, ev)
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []Event{{Kind: EventOutput, NodeName: OutputNodeName}}, got)
}

func TestEventStream_UndecodableOutputIsTransient(t *testing.T) {
	src := &fakeSDKStream{ch: make(chan rttypes.FlowResponseStream, 2)}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowOutputEvent{Value: rttypes.FlowOutputEvent{
		NodeName: aws.String(OutputNodeName),
		Content:  &rttypes.FlowOutputContentMemberDocument{Value: document.NewLazyDocument("1. Financial Highlights")},
	}}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowCompletionEvent{}
	close(src.ch)

	_, err := NewExecutor(&streamInvoker{stream: newEventStream(src)}).Execute(context.Background(), testHandle, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrTransient)
	assert.NotErrorIs(t, err, ErrNoOutput)
	assert.Contains(t, err.Error(), "failed to decode flow output")
}

func TestEventStream_SurfacesSourceError(t *testing.T) {
	src := &fakeSDKStream{ch: make(chan rttypes.FlowResponseStream), err: errors.New("eventstream: bad frame")}
	close(src.ch)

	s := newEventStream(src)
	for range s.Events() {
	}
	assert.ErrorContains(t, s.Err(), "bad frame")
	assert.NoError(t, s.Close())
}

func TestEventStream_CloseStopsPump(t *testing.T) {
	src := &fakeSDKStream{ch: make(chan rttypes.FlowResponseStream, 1), open: true}
	src.ch <- &rttypes.FlowResponseStreamMemberFlowCompletionEvent{}

	s := newEventStream(src)
	require.NoError(t, s.Close())
	for range s.Events() {
	}
}

type streamInvoker struct{ stream EventStream }

func (s *streamInvoker) Invoke(context.Context, Handle, string, string, string) (EventStream, error) {
	return s.stream, nil
}
