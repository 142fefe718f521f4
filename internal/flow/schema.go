package flow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const definitionSchemaURL = "https://icdeck.internal/schema/flow_definition.json"

//go:embed definition.schema.json
var definitionSchemaJSON string

var (
	definitionSchemaOnce sync.Once
	definitionSchema     *jsonschema.Schema
	definitionSchemaErr  error
)

func compiledDefinitionSchema() (*jsonschema.Schema, error) {
	definitionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(definitionSchemaURL, strings.NewReader(definitionSchemaJSON)); err != nil {
			definitionSchemaErr = err
			return
		}
		definitionSchema, definitionSchemaErr = compiler.Compile(definitionSchemaURL)
	})
	return definitionSchema, definitionSchemaErr
}

// Validate checks the definition against the flow definition schema before it
// is sent to the flow service.
func (d Definition) Validate() error {
	schema, err := compiledDefinitionSchema()
	if err != nil {
		return fmt.Errorf("failed to compile flow definition schema: %w", err)
	}

	var v any
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal flow definition for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize flow definition for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("flow definition schema validation failed: %w", err)
	}
	if _, err := d.PromptText(); err != nil {
		return err
	}
	return nil
}
