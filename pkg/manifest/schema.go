package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaText is a trimmed-down copy of the marketplace manifest schema,
// covering the fields this SDK emits. The marketplace remains the source of
// truth; this catches drift before publishing.
const schemaText = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schemaVersion", "key", "name", "baseUrl", "lifecycle", "webhooks"],
  "properties": {
    "schemaVersion": {"type": "string", "pattern": "^1\\.[0-9]+$"},
    "key": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9._-]+$"},
    "name": {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": "string"},
    "baseUrl": {"type": "string", "pattern": "^https?://"},
    "minimalSubscriptionPlan": {"type": "string"},
    "scopes": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "lifecycle": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "path"],
        "properties": {
          "type": {"type": "string", "enum": ["INSTALLED", "DELETED", "SETTINGS_UPDATED", "STATUS_CHANGED"]},
          "path": {"type": "string", "pattern": "^/"}
        }
      }
    },
    "webhooks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["event", "path"],
        "properties": {
          "event": {"type": "string", "minLength": 1},
          "path": {"type": "string", "pattern": "^/"}
        }
      }
    },
    "components": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "path"],
        "properties": {
          "type": {"type": "string"},
          "path": {"type": "string", "pattern": "^/"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
		if err != nil {
			schemaErr = fmt.Errorf("parse manifest schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("manifest.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("register manifest schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("manifest.schema.json")
	})
	return schema, schemaErr
}

// ValidateSchema serializes the manifest and checks it against the embedded
// JSON Schema. It complements Validate, which covers the invariants the
// schema cannot express.
func (m *Manifest) ValidateSchema() error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("serialize manifest: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("reparse manifest: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("manifest failed schema validation: %w", err)
	}
	return nil
}
