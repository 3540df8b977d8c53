// internal/stages/predictprice/handler.go
package predictprice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"hdb-assistant/internal/models"
)

const (
	StageName = "predict-price"
)

var (
	ErrPredictionUnavailable = errors.New("PREDICTION_UNAVAILABLE")
	ErrIncompleteFeatures    = errors.New("INCOMPLETE_FEATURES")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Predictor scores a complete feature set against the pricing model.
type Predictor interface {
	Predict(ctx context.Context, features *models.FeatureSet) (float64, error)
}

type Handler struct {
	config    *Config
	predictor Predictor
	logger    Logger
}

func NewHandler(config *Config, predictor Predictor, log Logger) *Handler {
	return &Handler{
		config:    config,
		predictor: predictor,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	features := input.Features
	if features == nil || !features.Complete() {
		// The resolver guarantees completeness; a gap here is a bug, not
		// something the model should paper over.
		return nil, fmt.Errorf("%w: %v", ErrIncompleteFeatures, missing(features))
	}

	resale, err := h.predictor.Predict(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictionUnavailable, err)
	}
	if math.IsNaN(resale) || math.IsInf(resale, 0) || resale <= 0 {
		return nil, fmt.Errorf("%w: model returned %v", ErrPredictionUnavailable, resale)
	}

	price := &models.PriceResult{
		EstimateSGD:    resale,
		ResaleSGD:      resale,
		RemainingLease: h.remainingLease(features.LeaseYear),
		Features:       features,
	}

	if features.BTO {
		price.EstimateSGD = resale * (1 - h.config.BTODiscountRate)
		price.BTOAdjusted = true
		price.DiscountRate = h.config.BTODiscountRate
	}

	h.logger.Info("price estimated", map[string]interface{}{
		"estimateSgd": price.EstimateSGD,
		"btoAdjusted": price.BTOAdjusted,
		"town":        features.Town,
		"flatType":    features.FlatType,
	})

	return &Output{Price: price}, nil
}

// remainingLease is the years left on the 99-year lease at the reference
// month.
func (h *Handler) remainingLease(leaseYear int) int {
	referenceYear := leaseYear
	if parts := strings.SplitN(h.config.ReferenceMonth, "-", 2); len(parts) == 2 {
		if y, err := strconv.Atoi(parts[0]); err == nil {
			referenceYear = y
		}
	}
	remaining := 99 - (referenceYear - leaseYear)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 99 {
		remaining = 99
	}
	return remaining
}

func missing(features *models.FeatureSet) []string {
	if features == nil {
		return models.RequiredFeatures
	}
	return features.MissingFeatures()
}
