package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePrompt = "Summarize the evidence: {{input}}"

func TestFingerprint_StableHex(t *testing.T) {
	fp := Fingerprint(samplePrompt)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(samplePrompt))
	assert.NotEqual(t, fp, Fingerprint(samplePrompt+" "))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(""))
}

func TestNewDefinition_Shape(t *testing.T) {
	d := NewDefinition("executive_summary", samplePrompt, DefaultInference())

	require.Len(t, d.Nodes, 3)
	assert.Equal(t, InputNodeName, d.Nodes[0].Name)
	assert.Equal(t, NodePrompt, d.Nodes[1].Type)
	assert.Equal(t, "executive_summary", d.Nodes[1].Name)
	assert.Equal(t, OutputNodeName, d.Nodes[2].Name)

	require.Len(t, d.Connections, 2)
	assert.Equal(t, "InputToexecutive_summary", d.Connections[0].Name)
	assert.Equal(t, CompletionPort, d.Connections[1].SourceOutput)
	assert.Equal(t, DocumentPort, d.Connections[1].TargetInput)

	text, err := d.PromptText()
	require.NoError(t, err)
	assert.Equal(t, samplePrompt, text)

	fp, err := d.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(samplePrompt), fp)
}

func TestDefinition_PromptTextErrors(t *testing.T) {
	_, err := Definition{}.PromptText()
	assert.ErrorContains(t, err, "no prompt node")

	d := NewDefinition("a", samplePrompt, DefaultInference())
	d.Nodes = append(d.Nodes, d.Nodes[1])
	_, err = d.PromptText()
	assert.ErrorContains(t, err, "more than one")
}

func TestDefinition_Validate(t *testing.T) {
	assert.NoError(t, NewDefinition("company_overview", samplePrompt, DefaultInference()).Validate())

	noPlaceholder := NewDefinition("company_overview", "no input", DefaultInference())
	assert.Error(t, noPlaceholder.Validate())

	hot := DefaultInference()
	hot.Temperature = 1.5
	assert.Error(t, NewDefinition("company_overview", samplePrompt, hot).Validate())

	badName := NewDefinition("company overview!", samplePrompt, DefaultInference())
	assert.Error(t, badName.Validate())

	noTokens := DefaultInference()
	noTokens.MaxTokens = 0
	assert.Error(t, NewDefinition("company_overview", samplePrompt, noTokens).Validate())
}
