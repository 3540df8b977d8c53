// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const decisionSchema = `{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["prediction", "analysis"]}
	},
	"required": ["action"],
	"additionalProperties": false
}`

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name     string
		document string
		valid    bool
	}{
		{"valid prediction", `{"action": "prediction"}`, true},
		{"valid analysis", `{"action": "analysis"}`, true},
		{"unknown label", `{"action": "both"}`, false},
		{"missing action", `{}`, false},
		{"extra field", `{"action": "analysis", "why": "x"}`, false},
		{"wrong type", `{"action": 3}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateJSON(decisionSchema, tt.document)
			assert.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.ErrorSummary())
			}
		})
	}
}

func TestValidateJSON_MalformedDocument(t *testing.T) {
	_, err := ValidateJSON(decisionSchema, `{"action": `)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain object", `{"action": "analysis"}`, `{"action": "analysis"}`},
		{"json fence", "```json\n{\"action\": \"analysis\"}\n```", `{"action": "analysis"}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose prefix", `Here is the result: {"a": 1}`, `{"a": 1}`},
		{"array", `[1, 2, 3]`, `[1, 2, 3]`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}
