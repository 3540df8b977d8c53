// Package validation checks model-produced JSON payloads against schemas
// before the pipeline trusts them.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateJSON validates a JSON document against a JSON schema.
func ValidateJSON(schema, document string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewStringLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
		})
	}

	return out, nil
}

// ErrorSummary flattens validation errors into one line for error details.
func (r *ValidationResult) ErrorSummary() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// ExtractJSON strips markdown code fences models wrap around JSON output.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}

	// Some models prefix prose before the object; take the outermost braces.
	start := strings.IndexAny(trimmed, "{[")
	if start > 0 {
		end := strings.LastIndexAny(trimmed, "}]")
		if end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}

	return trimmed
}
