// internal/stages/resolvefeatures/handler.go
package resolvefeatures

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
	StageName = "resolve-features"
)

var (
	ErrFeatureExtraction = errors.New("FEATURE_EXTRACTION_ERROR")
)

// extractionSchema accepts a partial variable set. Every property is
// optional; defaulting covers whatever the model leaves out.
const extractionSchema = `{
	"type": "object",
	"properties": {
		"month": {"type": "string"},
		"town": {"type": "string"},
		"flat_type": {"type": "string"},
		"flat_model": {"type": "string"},
		"storey_range": {"type": "string"},
		"floor_area_sqm": {"type": "number"},
		"lease_commence_date": {"type": "integer"},
		"bto": {"type": "boolean"}
	}
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
	raw, err := h.completer.CompleteJSON(ctx, h.buildPrompt(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeatureExtraction, err)
	}

	ext, err := h.parseExtraction(raw)
	if err != nil {
		return nil, err
	}

	features := h.applyDefaults(ext, input.Question)

	h.logger.Info("features resolved", map[string]interface{}{
		"town":      features.Town,
		"flatType":  features.FlatType,
		"bto":       features.BTO,
		"defaulted": features.Defaulted,
	})

	return &Output{Features: features}, nil
}

func (h *Handler) parseExtraction(raw string) (*extraction, error) {
	doc := validation.ExtractJSON(raw)

	result, err := validation.ValidateJSON(extractionSchema, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable extraction: %v", ErrFeatureExtraction, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrFeatureExtraction, result.ErrorSummary())
	}

	var ext extraction
	if err := json.Unmarshal([]byte(doc), &ext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeatureExtraction, err)
	}
	return &ext, nil
}

// applyDefaults fills every unset or out-of-vocabulary feature. The returned
// set is always complete.
func (h *Handler) applyDefaults(ext *extraction, question string) *models.FeatureSet {
	features := &models.FeatureSet{
		BTO: ext.BTO || mentionsBTO(question),
	}

	features.Month = ext.Month
	if !validMonth(features.Month) {
		features.Month = h.config.ReferenceMonth
		features.Defaulted = append(features.Defaulted, models.FeatureMonth)
	}

	features.Town = canonicalize(ext.Town)
	if !isValid(features.Town, validTowns) {
		features.Town = defaultTown
		features.Defaulted = append(features.Defaulted, models.FeatureTown)
	}

	features.FlatType = canonicalizeFlatType(ext.FlatType)
	if !isValid(features.FlatType, validFlatTypes) {
		features.FlatType = defaultFlatType
		features.Defaulted = append(features.Defaulted, models.FeatureFlatType)
	}

	features.FlatModel = canonicalize(ext.FlatModel)
	if !isValid(features.FlatModel, validFlatModels) {
		features.FlatModel = defaultFlatModel
		features.Defaulted = append(features.Defaulted, models.FeatureFlatModel)
	}

	features.StoreyRange = canonicalize(ext.StoreyRange)
	if !isValid(features.StoreyRange, validStoreyRanges) {
		features.StoreyRange = defaultStoreyRange
		features.Defaulted = append(features.Defaulted, models.FeatureStoreyRange)
	}

	features.FloorArea = ext.FloorArea
	if features.FloorArea < minFloorArea || features.FloorArea > maxFloorArea {
		features.FloorArea = medianFloorArea[features.FlatType]
		features.Defaulted = append(features.Defaulted, models.FeatureFloorArea)
	}

	features.LeaseYear = ext.LeaseYear
	if features.LeaseYear < minLeaseYear || features.LeaseYear > maxLeaseYear {
		features.LeaseYear = defaultLeaseYear
		features.Defaulted = append(features.Defaulted, models.FeatureLeaseYear)
	}

	return features
}

func mentionsBTO(question string) bool {
	q := strings.ToLower(question)
	return strings.Contains(q, "bto") || strings.Contains(q, "build-to-order") ||
		strings.Contains(q, "build to order")
}

// validMonth accepts YYYY-MM.
func validMonth(month string) bool {
	if len(month) != 7 || month[4] != '-' {
		return false
	}
	for i, r := range month {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	mm := month[5:]
	return mm >= "01" && mm <= "12"
}

func (h *Handler) buildPrompt(input *Input) string {
	var b strings.Builder
	b.WriteString("Extract the HDB flat attributes mentioned in the question below.\n")
	b.WriteString("Respond with a single JSON object. Omit any attribute the question does not mention.\n\n")
	b.WriteString("Attributes:\n")
	b.WriteString("- month: transaction month, YYYY-MM\n")
	b.WriteString("- town: one of " + strings.Join(validTowns, ", ") + "\n")
	b.WriteString("- flat_type: one of " + strings.Join(validFlatTypes, ", ") + "\n")
	b.WriteString("- flat_model: one of " + strings.Join(validFlatModels, ", ") + "\n")
	b.WriteString("- storey_range: one of " + strings.Join(validStoreyRanges, ", ") + "\n")
	b.WriteString(fmt.Sprintf("- floor_area_sqm: number between %.0f and %.0f\n", minFloorArea, maxFloorArea))
	b.WriteString(fmt.Sprintf("- lease_commence_date: year between %d and %d\n", minLeaseYear, maxLeaseYear))
	b.WriteString("- bto: true when the question is about a new build-to-order flat\n\n")

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
