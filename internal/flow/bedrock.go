package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"icdeck/internal/logging"
)

// AgentAPI is the subset of the Bedrock Agent client used for flow lifecycle.
type AgentAPI interface {
	ListFlows(ctx context.Context, in *bedrockagent.ListFlowsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListFlowsOutput, error)
	ListFlowAliases(ctx context.Context, in *bedrockagent.ListFlowAliasesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListFlowAliasesOutput, error)
	CreateFlow(ctx context.Context, in *bedrockagent.CreateFlowInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowOutput, error)
	UpdateFlow(ctx context.Context, in *bedrockagent.UpdateFlowInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.UpdateFlowOutput, error)
	GetFlow(ctx context.Context, in *bedrockagent.GetFlowInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetFlowOutput, error)
	PrepareFlow(ctx context.Context, in *bedrockagent.PrepareFlowInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.PrepareFlowOutput, error)
	CreateFlowVersion(ctx context.Context, in *bedrockagent.CreateFlowVersionInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowVersionOutput, error)
	CreateFlowAlias(ctx context.Context, in *bedrockagent.CreateFlowAliasInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateFlowAliasOutput, error)
	UpdateFlowAlias(ctx context.Context, in *bedrockagent.UpdateFlowAliasInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.UpdateFlowAliasOutput, error)
}

// Flow status values reported by GetFlow.
const (
	statusPrepared = "Prepared"
	statusFailed   = "Failed"
)

// BedrockService implements Service on Amazon Bedrock Flows.
type BedrockService struct {
	api          AgentAPI
	roleARN      string
	pollInterval time.Duration
	maxPolls     int
	logger       *zap.Logger
}

var _ Service = (*BedrockService)(nil)

func NewBedrockService(api AgentAPI, executionRoleARN string, logger *zap.Logger) *BedrockService {
	return &BedrockService{
		api:          api,
		roleARN:      executionRoleARN,
		pollInterval: 2 * time.Second,
		maxPolls:     30,
		logger:       logging.OrNop(logger),
	}
}

// WithPolling overrides how Prepare waits for the flow to become prepared.
func (s *BedrockService) WithPolling(interval time.Duration, attempts int) *BedrockService {
	s.pollInterval = interval
	s.maxPolls = attempts
	return s
}

func (s *BedrockService) Lookup(ctx context.Context, name, alias string) (LookupResult, error) {
	flowID, err := s.findFlow(ctx, name)
	if err != nil {
		return LookupResult{}, err
	}
	if flowID == "" {
		return LookupResult{Status: NotFound}, nil
	}

	aliasID, err := s.findAlias(ctx, flowID, alias)
	if err != nil {
		return LookupResult{}, err
	}
	if aliasID == "" {
		s.logger.Warn("flow exists without alias",
			zap.String("flow", name),
			zap.String("alias", alias))
		return LookupResult{Status: AliasMissing, Handle: Handle{FlowID: flowID}}, nil
	}
	return LookupResult{Status: Found, Handle: Handle{FlowID: flowID, AliasID: aliasID}}, nil
}

func (s *BedrockService) findFlow(ctx context.Context, name string) (string, error) {
	var token *string
	for {
		out, err := s.api.ListFlows(ctx, &bedrockagent.ListFlowsInput{NextToken: token})
		if err != nil {
			return "", fmt.Errorf("failed to list flows: %w", err)
		}
		for _, f := range out.FlowSummaries {
			if aws.ToString(f.Name) == name {
				return aws.ToString(f.Id), nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return "", nil
		}
		token = out.NextToken
	}
}

func (s *BedrockService) findAlias(ctx context.Context, flowID, alias string) (string, error) {
	var token *string
	for {
		out, err := s.api.ListFlowAliases(ctx, &bedrockagent.ListFlowAliasesInput{
			FlowIdentifier: aws.String(flowID),
			NextToken:      token,
		})
		if err != nil {
			return "", fmt.Errorf("failed to list aliases of flow %s: %w", flowID, err)
		}
		for _, a := range out.FlowAliasSummaries {
			if aws.ToString(a.Name) == alias {
				return aws.ToString(a.Id), nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return "", nil
		}
		token = out.NextToken
	}
}

func (s *BedrockService) Create(ctx context.Context, spec Spec) (string, error) {
	out, err := s.api.CreateFlow(ctx, &bedrockagent.CreateFlowInput{
		Name:             aws.String(spec.Name),
		Description:      aws.String(spec.Description),
		ExecutionRoleArn: aws.String(s.roleARN),
		Definition:       toBedrockDefinition(spec.Definition),
		ClientToken:      aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Id), nil
}

func (s *BedrockService) Update(ctx context.Context, flowID string, spec Spec) error {
	_, err := s.api.UpdateFlow(ctx, &bedrockagent.UpdateFlowInput{
		FlowIdentifier:   aws.String(flowID),
		Name:             aws.String(spec.Name),
		Description:      aws.String(spec.Description),
		ExecutionRoleArn: aws.String(s.roleARN),
		Definition:       toBedrockDefinition(spec.Definition),
	})
	return err
}

func (s *BedrockService) GetDefinition(ctx context.Context, flowID string) (Definition, error) {
	out, err := s.api.GetFlow(ctx, &bedrockagent.GetFlowInput{FlowIdentifier: aws.String(flowID)})
	if err != nil {
		return Definition{}, err
	}
	if out.Definition == nil {
		return Definition{}, fmt.Errorf("flow %s has no definition", flowID)
	}
	return fromBedrockDefinition(out.Definition), nil
}

// Prepare starts preparation of the working draft and waits until the flow
// reports Prepared.
func (s *BedrockService) Prepare(ctx context.Context, flowID string) error {
	if _, err := s.api.PrepareFlow(ctx, &bedrockagent.PrepareFlowInput{FlowIdentifier: aws.String(flowID)}); err != nil {
		return err
	}
	for attempt := 1; attempt <= s.maxPolls; attempt++ {
		out, err := s.api.GetFlow(ctx, &bedrockagent.GetFlowInput{FlowIdentifier: aws.String(flowID)})
		if err != nil {
			return fmt.Errorf("failed to read status of flow %s: %w", flowID, err)
		}
		switch string(out.Status) {
		case statusPrepared:
			return nil
		case statusFailed:
			return fmt.Errorf("flow %s failed to prepare", flowID)
		}
		// Preparing, or NotPrepared until the request is picked up.
		if attempt == s.maxPolls {
			break
		}
		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("flow %s not prepared after %d checks", flowID, s.maxPolls)
}

func (s *BedrockService) CreateVersion(ctx context.Context, flowID string) (string, error) {
	out, err := s.api.CreateFlowVersion(ctx, &bedrockagent.CreateFlowVersionInput{
		FlowIdentifier: aws.String(flowID),
		ClientToken:    aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Version), nil
}

func (s *BedrockService) CreateAlias(ctx context.Context, flowID, alias, version string) (string, error) {
	out, err := s.api.CreateFlowAlias(ctx, &bedrockagent.CreateFlowAliasInput{
		FlowIdentifier: aws.String(flowID),
		Name:           aws.String(alias),
		RoutingConfiguration: []types.FlowAliasRoutingConfigurationListItem{
			{FlowVersion: aws.String(version)},
		},
		ClientToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Id), nil
}

func (s *BedrockService) UpdateAlias(ctx context.Context, flowID, aliasID, alias, version string) error {
	_, err := s.api.UpdateFlowAlias(ctx, &bedrockagent.UpdateFlowAliasInput{
		FlowIdentifier:  aws.String(flowID),
		AliasIdentifier: aws.String(aliasID),
		Name:            aws.String(alias),
		RoutingConfiguration: []types.FlowAliasRoutingConfigurationListItem{
			{FlowVersion: aws.String(version)},
		},
	})
	return err
}

func toBedrockDefinition(d Definition) *types.FlowDefinition {
	out := &types.FlowDefinition{}
	for _, n := range d.Nodes {
		node := types.FlowNode{
			Name: aws.String(n.Name),
			Type: types.FlowNodeType(n.Type),
		}
		for _, in := range n.Inputs {
			fi := types.FlowNodeInput{
				Name: aws.String(in.Name),
				Type: types.FlowNodeIODataType(in.Type),
			}
			if in.Expression != "" {
				fi.Expression = aws.String(in.Expression)
			}
			node.Inputs = append(node.Inputs, fi)
		}
		for _, o := range n.Outputs {
			node.Outputs = append(node.Outputs, types.FlowNodeOutput{
				Name: aws.String(o.Name),
				Type: types.FlowNodeIODataType(o.Type),
			})
		}
		switch n.Type {
		case NodeInput:
			node.Configuration = &types.FlowNodeConfigurationMemberInput{Value: types.InputFlowNodeConfiguration{}}
		case NodeOutput:
			node.Configuration = &types.FlowNodeConfigurationMemberOutput{Value: types.OutputFlowNodeConfiguration{}}
		case NodePrompt:
			if n.Prompt != nil {
				node.Configuration = toBedrockPrompt(*n.Prompt)
			}
		}
		out.Nodes = append(out.Nodes, node)
	}
	for _, c := range d.Connections {
		out.Connections = append(out.Connections, types.FlowConnection{
			Name:   aws.String(c.Name),
			Source: aws.String(c.Source),
			Target: aws.String(c.Target),
			Type:   types.FlowConnectionType(c.Type),
			Configuration: &types.FlowConnectionConfigurationMemberData{
				Value: types.FlowDataConnectionConfiguration{
					SourceOutput: aws.String(c.SourceOutput),
					TargetInput:  aws.String(c.TargetInput),
				},
			},
		})
	}
	return out
}

func toBedrockPrompt(p PromptNode) types.FlowNodeConfiguration {
	vars := make([]types.PromptInputVariable, 0, len(p.InputVariables))
	for _, v := range p.InputVariables {
		vars = append(vars, types.PromptInputVariable{Name: aws.String(v)})
	}
	return &types.FlowNodeConfigurationMemberPrompt{
		Value: types.PromptFlowNodeConfiguration{
			SourceConfiguration: &types.PromptFlowNodeSourceConfigurationMemberInline{
				Value: types.PromptFlowNodeInlineConfiguration{
					ModelId:      aws.String(p.Inference.ModelID),
					TemplateType: types.PromptTemplateType("TEXT"),
					TemplateConfiguration: &types.PromptTemplateConfigurationMemberText{
						Value: types.TextPromptTemplateConfiguration{
							Text:           aws.String(p.Template),
							InputVariables: vars,
						},
					},
					InferenceConfiguration: &types.PromptInferenceConfigurationMemberText{
						Value: types.PromptModelInferenceConfiguration{
							MaxTokens:   aws.Int32(p.Inference.MaxTokens),
							Temperature: aws.Float32(p.Inference.Temperature),
							TopP:        aws.Float32(p.Inference.TopP),
						},
					},
				},
			},
		},
	}
}

func fromBedrockDefinition(d *types.FlowDefinition) Definition {
	var out Definition
	for _, n := range d.Nodes {
		node := Node{Name: aws.ToString(n.Name), Type: string(n.Type)}
		for _, in := range n.Inputs {
			node.Inputs = append(node.Inputs, Port{
				Name:       aws.ToString(in.Name),
				Type:       string(in.Type),
				Expression: aws.ToString(in.Expression),
			})
		}
		for _, o := range n.Outputs {
			node.Outputs = append(node.Outputs, Port{Name: aws.ToString(o.Name), Type: string(o.Type)})
		}
		if cfg, ok := n.Configuration.(*types.FlowNodeConfigurationMemberPrompt); ok {
			node.Prompt = fromBedrockPrompt(cfg.Value)
		}
		out.Nodes = append(out.Nodes, node)
	}
	for _, c := range d.Connections {
		conn := Connection{
			Name:   aws.ToString(c.Name),
			Source: aws.ToString(c.Source),
			Target: aws.ToString(c.Target),
			Type:   string(c.Type),
		}
		if data, ok := c.Configuration.(*types.FlowConnectionConfigurationMemberData); ok {
			conn.SourceOutput = aws.ToString(data.Value.SourceOutput)
			conn.TargetInput = aws.ToString(data.Value.TargetInput)
		}
		out.Connections = append(out.Connections, conn)
	}
	return out
}

func fromBedrockPrompt(cfg types.PromptFlowNodeConfiguration) *PromptNode {
	inline, ok := cfg.SourceConfiguration.(*types.PromptFlowNodeSourceConfigurationMemberInline)
	if !ok {
		return nil
	}
	p := &PromptNode{Inference: Inference{ModelID: aws.ToString(inline.Value.ModelId)}}
	if text, ok := inline.Value.TemplateConfiguration.(*types.PromptTemplateConfigurationMemberText); ok {
		p.Template = aws.ToString(text.Value.Text)
		for _, v := range text.Value.InputVariables {
			p.InputVariables = append(p.InputVariables, aws.ToString(v.Name))
		}
	}
	if inf, ok := inline.Value.InferenceConfiguration.(*types.PromptInferenceConfigurationMemberText); ok {
		p.Inference.MaxTokens = aws.ToInt32(inf.Value.MaxTokens)
		p.Inference.Temperature = aws.ToFloat32(inf.Value.Temperature)
		p.Inference.TopP = aws.ToFloat32(inf.Value.TopP)
	}
	return p
}
