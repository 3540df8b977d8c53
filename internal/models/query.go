// internal/models/query.go
package models

// Intent is the single path a query is routed down.
type Intent string

const (
	IntentPrediction Intent = "prediction"
	IntentAnalysis   Intent = "analysis"
)

// Valid reports whether the intent is one of the two supported labels.
func (i Intent) Valid() bool {
	return i == IntentPrediction || i == IntentAnalysis
}

// Query is a single user question flowing through the pipeline.
type Query struct {
	RequestID string                 `json:"requestId"`
	Text      string                 `json:"text"`
	Context   map[string]interface{} `json:"context,omitempty"`
}
