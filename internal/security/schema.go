package security

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaViolation is returned when a value fails JSON Schema
// validation.
var ErrSchemaViolation = fmt.Errorf("config violates schema")

// ValidateAgainstSchema compiles schemaJSON and validates value (typically
// the result of unmarshaling JSON into a map[string]any) against it. An
// empty schemaJSON is treated as "no constraints" and always passes, since
// most agents in this system configure no schema at all.
func ValidateAgainstSchema(schemaJSON string, value any) error {
	if strings.TrimSpace(schemaJSON) == "" {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("agent-config.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("compile agent config schema: %w", err)
	}
	schema, err := compiler.Compile("agent-config.json")
	if err != nil {
		return fmt.Errorf("compile agent config schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}
