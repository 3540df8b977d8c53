// internal/common/predictor/client.go
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"hdb-assistant/internal/common/config"
	commonhttp "hdb-assistant/internal/common/http"
	"hdb-assistant/internal/common/logger"
	"hdb-assistant/internal/models"
)

var ErrModelUnavailable = errors.New("MODEL_UNAVAILABLE")

// Client calls the pricing model service.
type Client struct {
	baseURL    string
	maxRetries int
	httpClient *commonhttp.Client
	logger     logger.Logger
}

type predictResponse struct {
	PredictedPrice float64 `json:"predicted_price"`
}

func NewClient(cfg *config.Config, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.APIs.Predictor.BaseURL, "/"),
		maxRetries: cfg.APIs.Predictor.MaxRetries,
		httpClient: commonhttp.NewClient(config.GetDuration(cfg.APIs.Predictor.Timeout)),
		logger: log.With(map[string]interface{}{
			"component": "predictor",
		}),
	}
}

// Predict posts the complete feature set to the model and returns the
// estimated resale price. A non-finite or non-positive model output is an
// error: the caller treats it as a prediction failure, not a price.
func (c *Client) Predict(ctx context.Context, features *models.FeatureSet) (float64, error) {
	if missing := features.MissingFeatures(); len(missing) > 0 {
		return 0, fmt.Errorf("%w: incomplete feature set, missing %v", ErrModelUnavailable, missing)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", ErrModelUnavailable, ctx.Err())
			}
		}

		price, retryable, err := c.doPredict(ctx, features)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %v", ErrModelUnavailable, ctx.Err())
		}
		lastErr = err
		if !retryable {
			break
		}

		c.logger.Warn("prediction attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return 0, fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
}

func (c *Client) doPredict(ctx context.Context, features *models.FeatureSet) (float64, bool, error) {
	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/predict", features)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return 0, retryable, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, fmt.Errorf("decode error: %v", err)
	}

	if math.IsNaN(out.PredictedPrice) || math.IsInf(out.PredictedPrice, 0) || out.PredictedPrice <= 0 {
		return 0, false, fmt.Errorf("model returned unusable prediction %v", out.PredictedPrice)
	}

	return out.PredictedPrice, false, nil
}
