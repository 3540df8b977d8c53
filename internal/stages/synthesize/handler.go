// internal/stages/synthesize/handler.go
package synthesize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hdb-assistant/internal/models"
)

const (
	StageName = "synthesize"
)

var (
	ErrNoResult = errors.New("SYNTHESIS_NO_RESULT")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Completer produces a plain-text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
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

// execute writes the answer. A completion failure degrades to a
// deterministic answer built from the raw result; the raw result is always
// carried through either way.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Result == nil {
		return nil, ErrNoResult
	}
	switch input.Result.Kind {
	case models.ResultKindRows:
		if input.Result.Rows == nil {
			return nil, fmt.Errorf("%w: rows result missing", ErrNoResult)
		}
	case models.ResultKindPrice:
		if input.Result.Price == nil {
			return nil, fmt.Errorf("%w: price result missing", ErrNoResult)
		}
	default:
		return nil, fmt.Errorf("%w: unknown result kind %q", ErrNoResult, input.Result.Kind)
	}

	answer, err := h.completer.Complete(ctx, h.buildPrompt(input))
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			h.logger.Warn("synthesis degraded to fallback answer", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return &Output{
			AnswerText: h.fallbackAnswer(input.Result),
			Result:     input.Result,
			Fallback:   true,
		}, nil
	}

	h.logger.Info("answer synthesized", map[string]interface{}{
		"kind":         string(input.Result.Kind),
		"answerLength": len(answer),
	})

	return &Output{
		AnswerText: strings.TrimSpace(answer),
		Result:     input.Result,
	}, nil
}

func (h *Handler) buildPrompt(input *Input) string {
	var b strings.Builder
	b.WriteString("You answer questions about Singapore HDB housing prices.\n")
	b.WriteString("Write a short, factual answer to the question using only the data below.\n")
	b.WriteString("State prices in Singapore dollars. Do not invent numbers.\n\n")

	switch input.Result.Kind {
	case models.ResultKindPrice:
		payload, _ := json.Marshal(input.Result.Price)
		b.WriteString("Price estimate: ")
		b.Write(payload)
		b.WriteString("\n")
	case models.ResultKindRows:
		rows := input.Result.Rows.Rows
		truncated := false
		if len(rows) > h.config.RowCap {
			rows = rows[:h.config.RowCap]
			truncated = true
		}
		b.WriteString("Columns: " + strings.Join(input.Result.Rows.Columns, ", ") + "\n")
		payload, _ := json.Marshal(rows)
		b.WriteString("Rows: ")
		b.Write(payload)
		b.WriteString("\n")
		if truncated {
			b.WriteString(fmt.Sprintf("(showing %d of %d rows)\n", h.config.RowCap, len(input.Result.Rows.Rows)))
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(input.Question)
	return b.String()
}

// fallbackAnswer is built from the raw result alone so the caller still gets
// something usable when the language backend is down.
func (h *Handler) fallbackAnswer(result *models.PathResult) string {
	switch result.Kind {
	case models.ResultKindPrice:
		p := result.Price
		answer := fmt.Sprintf("The estimated price is S$%.0f.", p.EstimateSGD)
		if p.Features != nil {
			answer = fmt.Sprintf("The estimated price for a %s flat in %s is S$%.0f.",
				p.Features.FlatType, p.Features.Town, p.EstimateSGD)
		}
		if p.BTOAdjusted {
			answer += fmt.Sprintf(" This reflects a %.0f%% adjustment below the resale estimate of S$%.0f for a new build-to-order flat.",
				p.DiscountRate*100, p.ResaleSGD)
		}
		return answer
	case models.ResultKindRows:
		n := len(result.Rows.Rows)
		if n == 0 {
			return "The query ran successfully but matched no records."
		}
		return fmt.Sprintf("The query returned %d records with columns %s. See the raw result for details.",
			n, strings.Join(result.Rows.Columns, ", "))
	}
	return "No result is available for this query."
}
