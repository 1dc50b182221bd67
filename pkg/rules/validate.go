package rules

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ruleSchemaText validates the structural shape of rule documents accepted
// over the management API. Semantic checks (known condition types, action
// allowlist) live in Validate.
const ruleSchemaText = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "event", "actions"],
  "properties": {
    "id": {"type": "string"},
    "workspaceId": {"type": "string"},
    "name": {"type": "string", "minLength": 1, "maxLength": 100},
    "event": {"type": "string", "minLength": 1},
    "enabled": {"type": "boolean"},
    "priority": {"type": "integer", "minimum": -100, "maximum": 100},
    "combinator": {"type": "string", "enum": ["AND", "OR", "and", "or"]},
    "conditions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "operator": {"type": "string"},
          "field": {"type": "string"},
          "value": {"type": "string"},
          "values": {"type": "array", "items": {"type": "string"}},
          "expression": {"type": "string"}
        }
      }
    },
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "params": {"type": "object"}
        }
      }
    }
  }
}`

var (
	ruleSchemaOnce sync.Once
	ruleSchema     *jsonschema.Schema
	ruleSchemaErr  error
)

func compiledRuleSchema() (*jsonschema.Schema, error) {
	ruleSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ruleSchemaText))
		if err != nil {
			ruleSchemaErr = fmt.Errorf("parse rule schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("rule.schema.json", doc); err != nil {
			ruleSchemaErr = fmt.Errorf("register rule schema: %w", err)
			return
		}
		ruleSchema, ruleSchemaErr = c.Compile("rule.schema.json")
	})
	return ruleSchema, ruleSchemaErr
}

// ValidateDocument checks a raw rule document against the JSON Schema
// before it is decoded, so API callers get shape errors with field paths.
func ValidateDocument(raw []byte) error {
	sch, err := compiledRuleSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("rule failed schema validation: %w", err)
	}
	return nil
}

var knownConditionTypes = map[string]bool{
	CondDescriptionContains: true,
	CondDescriptionEquals:   true,
	CondHasTag:              true,
	CondProjectIDEquals:     true,
	CondIsBillable:          true,
	CondField:               true,
	CondExpression:          true,
}

var knownOperators = map[string]bool{
	"":            true,
	OpEquals:      true,
	OpNotEquals:   true,
	OpContains:    true,
	OpNotContains: true,
	OpIn:          true,
	OpNotIn:       true,
}

var allowedActions = map[string]bool{
	ActionAddTag:           true,
	ActionRemoveTag:        true,
	ActionSetDescription:   true,
	ActionSetBillable:      true,
	ActionSetProjectByID:   true,
	ActionSetProjectByName: true,
	ActionSetTaskByID:      true,
	ActionSetTaskByName:    true,
	ActionOpenAPICall:      true,
}

// Validate checks the semantic constraints of a decoded rule: known
// condition types and operators, allowlisted actions, priority bounds and
// compilable expressions.
func Validate(r *Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Name) > 100 {
		return fmt.Errorf("rule name exceeds 100 characters")
	}
	if strings.TrimSpace(r.Event) == "" {
		return fmt.Errorf("rule event is required")
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("priority %d outside [%d, %d]", r.Priority, MinPriority, MaxPriority)
	}
	if r.Combinator != "" &&
		!strings.EqualFold(r.Combinator, CombinatorAnd) &&
		!strings.EqualFold(r.Combinator, CombinatorOr) {
		return fmt.Errorf("unknown combinator %q", r.Combinator)
	}

	for i, c := range r.Conditions {
		if !knownConditionTypes[c.Type] {
			return fmt.Errorf("condition %d: unknown type %q", i, c.Type)
		}
		if !knownOperators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
		if c.Type == CondExpression {
			if err := NewEvaluator().checkExpression(c.Expression); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
		}
		if c.Type == CondField && strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: field condition requires a field path", i)
		}
	}

	if len(r.Actions) == 0 {
		return fmt.Errorf("rule requires at least one action")
	}
	for i, a := range r.Actions {
		if !allowedActions[a.Type] {
			return fmt.Errorf("action %d: type %q is not allowed", i, a.Type)
		}
	}
	return nil
}
