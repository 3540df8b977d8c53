// internal/stages/classifyintent/models.go
package classifyintent

import "hdb-assistant/internal/models"

type Input struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	Intent models.Intent `json:"intent"`
}

// decision is the raw routing verdict returned by the language model.
type decision struct {
	Action string `json:"action"`
}
