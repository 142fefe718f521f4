// Package flow manages the hosted prompt flows that turn a section's evidence
// into text: their definitions, the fingerprints that decide when a flow must
// be rewritten, the registry that owns per-section handles and the executor
// that invokes them.
package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Node types.
const (
	NodeInput  = "Input"
	NodePrompt = "Prompt"
	NodeOutput = "Output"
)

// Fixed node, port and variable names of the three-node flow.
const (
	InputNodeName  = "document"
	OutputNodeName = "FinalOutput"
	DocumentPort   = "document"
	PromptVariable = "input"
	CompletionPort = "modelCompletion"
	PortTypeString = "String"
	ConnectionData = "Data"
	DataExpression = "$.data"
)

// Inference holds the generation parameters of the prompt node.
type Inference struct {
	ModelID     string  `json:"model_id"`
	MaxTokens   int32   `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
}

// DefaultInference matches the parameters the deck flows were tuned with.
func DefaultInference() Inference {
	return Inference{
		ModelID:     "anthropic.claude-instant-v1",
		MaxTokens:   2000,
		Temperature: 0.5,
		TopP:        0.9,
	}
}

type Port struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Expression string `json:"expression,omitempty"`
}

type PromptNode struct {
	Template       string    `json:"template"`
	InputVariables []string  `json:"input_variables"`
	Inference      Inference `json:"inference"`
}

type Node struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Inputs  []Port      `json:"inputs,omitempty"`
	Outputs []Port      `json:"outputs,omitempty"`
	Prompt  *PromptNode `json:"prompt,omitempty"`
}

type Connection struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Type         string `json:"type"`
	SourceOutput string `json:"source_output"`
	TargetInput  string `json:"target_input"`
}

// Definition is the provider-neutral form of a flow graph.
type Definition struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// NewDefinition builds input -> prompt -> output for one section. The prompt
// node is named after the section.
func NewDefinition(promptNode, prompt string, inf Inference) Definition {
	return Definition{
		Nodes: []Node{
			{
				Name:    InputNodeName,
				Type:    NodeInput,
				Outputs: []Port{{Name: DocumentPort, Type: PortTypeString}},
			},
			{
				Name:    promptNode,
				Type:    NodePrompt,
				Inputs:  []Port{{Name: PromptVariable, Type: PortTypeString, Expression: DataExpression}},
				Outputs: []Port{{Name: CompletionPort, Type: PortTypeString}},
				Prompt: &PromptNode{
					Template:       prompt,
					InputVariables: []string{PromptVariable},
					Inference:      inf,
				},
			},
			{
				Name:   OutputNodeName,
				Type:   NodeOutput,
				Inputs: []Port{{Name: DocumentPort, Type: PortTypeString, Expression: DataExpression}},
			},
		},
		Connections: []Connection{
			{
				Name:         "InputTo" + promptNode,
				Source:       InputNodeName,
				Target:       promptNode,
				Type:         ConnectionData,
				SourceOutput: DocumentPort,
				TargetInput:  PromptVariable,
			},
			{
				Name:         promptNode + "ToOutput",
				Source:       promptNode,
				Target:       OutputNodeName,
				Type:         ConnectionData,
				SourceOutput: CompletionPort,
				TargetInput:  DocumentPort,
			},
		},
	}
}

// PromptText returns the template of the definition's only prompt node.
func (d Definition) PromptText() (string, error) {
	var found *PromptNode
	for i := range d.Nodes {
		n := d.Nodes[i]
		if n.Type != NodePrompt {
			continue
		}
		if found != nil {
			return "", fmt.Errorf("definition has more than one prompt node")
		}
		if n.Prompt == nil {
			return "", fmt.Errorf("prompt node %s has no template", n.Name)
		}
		found = n.Prompt
	}
	if found == nil {
		return "", fmt.Errorf("definition has no prompt node")
	}
	return found.Template, nil
}

// Fingerprint returns the fingerprint of the definition's prompt text.
func (d Definition) Fingerprint() (string, error) {
	text, err := d.PromptText()
	if err != nil {
		return "", err
	}
	return Fingerprint(text), nil
}

// Fingerprint is the SHA-256 hex digest of the prompt text.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
