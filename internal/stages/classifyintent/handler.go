// internal/stages/classifyintent/handler.go
package classifyintent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hdb-assistant/internal/common/validation"
	"hdb-assistant/internal/models"
)

const (
	StageName = "classify-intent"
)

var (
	ErrClassificationAmbiguous = errors.New("CLASSIFICATION_AMBIGUOUS")
	ErrClassifierUnavailable   = errors.New("CLASSIFIER_UNAVAILABLE")
)

// decisionSchema constrains the model's routing verdict to exactly one of
// the two executable paths. Anything else is ambiguous, not retryable.
const decisionSchema = `{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["prediction", "analysis"]}
	},
	"required": ["action"],
	"additionalProperties": false
}`

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Completer produces a JSON completion for a prompt.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	config    *Config
	completer Completer
	logger    Logger
}

func NewHandler(config *Config, completer Completer, log Logger) *Handler {
	return &Handler{
		config:    config,
		completer: completer,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrClassificationAmbiguous)
	}

	raw, err := h.completer.CompleteJSON(ctx, h.buildPrompt(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	intent, err := h.parseDecision(raw)
	if err != nil {
		return nil, err
	}

	h.logger.Info("query classified", map[string]interface{}{
		"intent": string(intent),
	})

	return &Output{Intent: intent}, nil
}

// parseDecision validates the model verdict and maps it to an intent. A
// verdict outside the two labels is ambiguous and must not be retried.
func (h *Handler) parseDecision(raw string) (models.Intent, error) {
	doc := validation.ExtractJSON(raw)

	result, err := validation.ValidateJSON(decisionSchema, doc)
	if err != nil {
		return "", fmt.Errorf("%w: unparseable decision: %v", ErrClassificationAmbiguous, err)
	}
	if !result.Valid {
		h.logger.Warn("decision rejected by schema", map[string]interface{}{
			"errors": result.ErrorSummary(),
		})
		return "", fmt.Errorf("%w: %s", ErrClassificationAmbiguous, result.ErrorSummary())
	}

	var d decision
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationAmbiguous, err)
	}

	intent := models.Intent(d.Action)
	if !intent.Valid() {
		return "", fmt.Errorf("%w: action %q", ErrClassificationAmbiguous, d.Action)
	}
	return intent, nil
}

func (h *Handler) buildPrompt(input *Input) string {
	var b strings.Builder
	b.WriteString("You route questions about Singapore HDB housing prices to exactly one tool.\n\n")
	b.WriteString("Choose \"prediction\" when the user asks what a specific flat would cost, ")
	b.WriteString("for an estimated or future price, or about BTO pricing.\n")
	b.WriteString("Choose \"analysis\" when the user asks about historical transactions, ")
	b.WriteString("trends, comparisons, counts or aggregates over past resale data.\n\n")
	b.WriteString("Respond with JSON only: {\"action\": \"prediction\"} or {\"action\": \"analysis\"}.\n")
	b.WriteString("If the question asks for both, pick the one it leads with.\n\n")

	if len(input.Context) > 0 {
		ctxJSON, _ := json.Marshal(input.Context)
		b.WriteString("Conversation context: ")
		b.Write(ctxJSON)
		b.WriteString("\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(input.Question)
	return b.String()
}
