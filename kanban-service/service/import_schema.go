package service

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Structural contract for one import/export entry. Enum membership and trim
// normalization are checked in Go afterwards, because padded values like
// " To Do " are accepted and trimmed rather than rejected.
const importEntrySchema = `{
  "type": "object",
  "required": ["title", "status"],
  "properties": {
    "id": {"type": ["string", "null"]},
    "title": {"type": "string", "minLength": 1},
    "assignee": {"type": ["string", "null"]},
    "due_date": {"type": ["string", "null"]},
    "description": {"type": ["string", "null"]},
    "priority": {"type": ["string", "null"]},
    "labels": {"type": ["array", "null"], "items": {"type": "string"}},
    "estimated_time": {"type": ["number", "null"], "minimum": 0.5, "maximum": 8.0},
    "status": {"type": "string", "minLength": 1},
    "created_at": {"type": ["string", "null"]},
    "last_modified": {"type": ["string", "null"]},
    "deleted_at": {"type": ["string", "null"]}
  }
}`

var importSchema = mustCompileImportSchema()

func mustCompileImportSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("task_import.json", strings.NewReader(importEntrySchema)); err != nil {
		panic(fmt.Sprintf("add import schema resource: %v", err))
	}
	return compiler.MustCompile("task_import.json")
}

// validateEntrySchema runs the entry through the compiled schema the same way
// it would arrive on the wire.
func validateEntrySchema(entry TaskImportData) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry for validation: %w", err)
	}
	var obj any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("unmarshal entry for validation: %w", err)
	}
	if err := importSchema.Validate(obj); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed: %s", leafCause(ve))
		}
		return err
	}
	return nil
}

// leafCause digs to the innermost cause, which carries the useful message.
func leafCause(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation != "" {
		return fmt.Sprintf("%s at %s", ve.Message, ve.InstanceLocation)
	}
	return ve.Message
}
