package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/specforge/specforge/pkg/models"
)

// Capability payload schemas. Registration validation compiles them so a
// malformed schema is caught when the agent registers, not mid-task.
const proposalInputSchema = `{
	"type": "object",
	"required": ["proposal_id", "operation_type", "proposed_changes"],
	"properties": {
		"proposal_id": {"type": "string"},
		"spec_id": {"type": "string"},
		"operation_type": {"enum": ["create", "update", "delete"]},
		"proposed_changes": {"type": "object"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

const validatorOutputSchema = `{
	"type": "object",
	"required": ["is_valid"],
	"properties": {
		"is_valid": {"type": "boolean"},
		"errors": {"type": "array", "items": {"type": "string"}},
		"warnings": {"type": "array", "items": {"type": "string"}},
		"suggestions": {"type": "array", "items": {"type": "string"}}
	}
}`

const dependencyOutputSchema = `{
	"type": "object",
	"required": ["is_valid"],
	"properties": {
		"is_valid": {"type": "boolean"},
		"dependency_graph": {"type": "object"},
		"circular_dependencies": {"type": "array"},
		"resolution_suggestions": {"type": "array", "items": {"type": "string"}}
	}
}`

const semanticOutputSchema = `{
	"type": "object",
	"properties": {
		"related_node_ids": {"type": "array", "items": {"type": "string"}},
		"duplicates": {"type": "array", "items": {"type": "string"}},
		"observations": {"type": "array", "items": {"type": "string"}}
	}
}`

const mutationOutputSchema = `{
	"type": "object",
	"required": ["success"],
	"properties": {
		"success": {"type": "boolean"},
		"mutation_plan": {"type": "object"},
		"feasibility_score": {"type": "number", "minimum": 0, "maximum": 1},
		"complexity_score": {"type": "number", "minimum": 0, "maximum": 1},
		"risk_factors": {"type": "array"}
	}
}`

const impactOutputSchema = `{
	"type": "object",
	"required": ["impact_analysis"],
	"properties": {
		"impact_analysis": {
			"type": "object",
			"properties": {
				"directly_affected": {"type": "array", "items": {"type": "string"}},
				"transitively_affected": {"type": "array", "items": {"type": "string"}},
				"impact_ratio": {"type": "number", "minimum": 0, "maximum": 1},
				"severity": {"enum": ["low", "medium", "high", "critical"]}
			}
		}
	}
}`

const conflictOutputSchema = `{
	"type": "object",
	"required": ["has_conflict"],
	"properties": {
		"has_conflict": {"type": "boolean"},
		"conflicting_fields": {"type": "array", "items": {"type": "string"}},
		"resolutions": {"type": "array"}
	}
}`

// CompileCapabilitySchemas compiles every schema a registration declares.
// Returns the first compilation failure with the capability named.
func CompileCapabilitySchemas(caps []models.Capability) error {
	for _, c := range caps {
		if _, err := CompileSchemas(c); err != nil {
			return err
		}
	}
	return nil
}

// SchemaSet holds one capability's compiled payload schemas. A nil set or a
// nil member skips that validation.
type SchemaSet struct {
	input  *jsonschema.Schema
	output *jsonschema.Schema
}

// CompileSchemas compiles a capability's declared schemas for runtime payload
// validation. Empty schema strings compile to nil.
func CompileSchemas(c models.Capability) (*SchemaSet, error) {
	input, err := compileSchema(c.Name+"/input", c.InputSchema)
	if err != nil {
		return nil, err
	}
	output, err := compileSchema(c.Name+"/output", c.OutputSchema)
	if err != nil {
		return nil, err
	}
	return &SchemaSet{input: input, output: output}, nil
}

// ValidateInput checks the task's resolved proposal against the capability
// input schema.
func (s *SchemaSet) ValidateInput(task *models.AgentTask) error {
	if s == nil || s.input == nil {
		return nil
	}
	doc, err := jsonDoc(task.Proposal)
	if err != nil {
		return fmt.Errorf("encoding task input: %w", err)
	}
	if err := s.input.Validate(doc); err != nil {
		return fmt.Errorf("task input rejected by capability schema: %w", err)
	}
	return nil
}

// ValidateOutput checks the verdict's typed payload against the capability
// output schema.
func (s *SchemaSet) ValidateOutput(verdict *models.Verdict) error {
	if s == nil || s.output == nil {
		return nil
	}
	payload := payloadOf(verdict)
	if payload == nil {
		return nil
	}
	doc, err := jsonDoc(payload)
	if err != nil {
		return fmt.Errorf("encoding verdict payload: %w", err)
	}
	if err := s.output.Validate(doc); err != nil {
		return fmt.Errorf("verdict rejected by capability schema: %w", err)
	}
	return nil
}

func payloadOf(v *models.Verdict) any {
	switch v.AgentType {
	case models.AgentTypeValidator:
		if v.Validator != nil {
			return v.Validator
		}
	case models.AgentTypeDependency:
		if v.Dependency != nil {
			return v.Dependency
		}
	case models.AgentTypeSemantic:
		if v.Semantic != nil {
			return v.Semantic
		}
	case models.AgentTypeMutation:
		if v.Mutation != nil {
			return v.Mutation
		}
	case models.AgentTypeImpact:
		if v.Impact != nil {
			return v.Impact
		}
	case models.AgentTypeConflict:
		if v.Conflict != nil {
			return v.Conflict
		}
	}
	return nil
}

// jsonDoc round-trips v through JSON so the validator sees the wire shape.
func jsonDoc(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("capability %s: adding schema: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("capability %s: compiling schema: %w", name, err)
	}
	return compiled, nil
}
