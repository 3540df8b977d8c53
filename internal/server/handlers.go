// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "hdb-assistant/internal/common/errors"
	"hdb-assistant/internal/models"
	"hdb-assistant/internal/orchestrator"
	"hdb-assistant/internal/stages/predictprice"
)

// QueryService runs a question through the full pipeline.
type QueryService interface {
	Handle(ctx context.Context, req *orchestrator.Request) *models.Response
}

// PriceService scores an explicit feature set, bypassing language parsing.
type PriceService interface {
	Execute(ctx context.Context, input *predictprice.Input) (*predictprice.Output, error)
}

// QueryHandler handles query-related HTTP requests
type QueryHandler struct {
	queries QueryService
	prices  PriceService
}

func NewQueryHandler(queries QueryService, prices PriceService) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		prices:  prices,
	}
}

type queryRequest struct {
	Question string                 `json:"question" binding:"required"`
	Context  map[string]interface{} `json:"context"`
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		std := apperrors.NewInvalidRequestError(err.Error())
		c.JSON(apperrors.HTTPStatus(std.Code), gin.H{"error": std.Message, "details": std.Details, "code": std.Code})
		return
	}

	resp := h.queries.Handle(c.Request.Context(), &orchestrator.Request{
		RequestID: c.GetHeader("X-Request-ID"),
		Question:  req.Question,
		Context:   req.Context,
	})

	status := http.StatusOK
	if resp.Degraded {
		code := apperrors.ErrorCode(resp.ErrorCode)
		status = apperrors.HTTPStatus(code)
		if apperrors.IsRetryableErrorCode(code) {
			c.Header("Retry-After", "1")
		}
	}
	c.JSON(status, resp)
}

// Predict handles POST /api/v1/predict
func (h *QueryHandler) Predict(c *gin.Context) {
	var features models.FeatureSet
	if err := c.ShouldBindJSON(&features); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if missing := features.MissingFeatures(); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing required features",
			"missing": missing,
		})
		return
	}

	output, err := h.prices.Execute(c.Request.Context(), &predictprice.Input{Features: &features})
	if err != nil {
		var std *apperrors.StandardError
		if errors.Is(err, predictprice.ErrPredictionUnavailable) {
			std = apperrors.NewPredictionUnavailableError(err)
		} else {
			std = apperrors.Normalize(err)
		}
		c.JSON(apperrors.HTTPStatus(std.Code), gin.H{"error": std.Details, "code": std.Code})
		return
	}

	c.JSON(http.StatusOK, output.Price)
}
