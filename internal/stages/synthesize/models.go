// internal/stages/synthesize/models.go
package synthesize

import "hdb-assistant/internal/models"

type Input struct {
	Question string             `json:"question"`
	Intent   models.Intent      `json:"intent"`
	Result   *models.PathResult `json:"result"`
}

type Output struct {
	AnswerText string             `json:"answerText"`
	Result     *models.PathResult `json:"result"`

	// Fallback marks the answer as deterministically built from the raw
	// result rather than written by the model.
	Fallback bool `json:"fallback"`
}
