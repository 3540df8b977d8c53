// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "hdb-assistant/internal/common/errors"
	"hdb-assistant/internal/common/metrics"
	"hdb-assistant/internal/common/observability"
	"hdb-assistant/internal/models"
	"hdb-assistant/internal/stages/classifyintent"
	"hdb-assistant/internal/stages/generatesql"
	"hdb-assistant/internal/stages/predictprice"
	"hdb-assistant/internal/stages/resolvefeatures"
	"hdb-assistant/internal/stages/synthesize"
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Stage collaborators, one per pipeline step.
type IntentClassifier interface {
	Execute(ctx context.Context, input *classifyintent.Input) (*classifyintent.Output, error)
}

type FeatureResolver interface {
	Execute(ctx context.Context, input *resolvefeatures.Input) (*resolvefeatures.Output, error)
}

type SQLGenerator interface {
	Execute(ctx context.Context, input *generatesql.Input) (*generatesql.Output, error)
}

type PricePredictor interface {
	Execute(ctx context.Context, input *predictprice.Input) (*predictprice.Output, error)
}

type Synthesizer interface {
	Execute(ctx context.Context, input *synthesize.Input) (*synthesize.Output, error)
}

type Request struct {
	RequestID string                 `json:"requestId,omitempty"`
	Question  string                 `json:"question"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type Config struct {
	// StageTimeout bounds every collaborator call individually.
	StageTimeout time.Duration
}

type Orchestrator struct {
	config     *Config
	classifier IntentClassifier
	resolver   FeatureResolver
	analyst    SQLGenerator
	predictor  PricePredictor
	writer     Synthesizer
	obs        *observability.Observability
	tracing    *observability.Tracing
	logger     Logger
}

func New(config *Config, classifier IntentClassifier, resolver FeatureResolver,
	analyst SQLGenerator, predictor PricePredictor, writer Synthesizer,
	obs *observability.Observability, tracing *observability.Tracing, log Logger) *Orchestrator {
	return &Orchestrator{
		config:     config,
		classifier: classifier,
		resolver:   resolver,
		analyst:    analyst,
		predictor:  predictor,
		writer:     writer,
		obs:        obs,
		tracing:    tracing,
		logger:     log,
	}
}

// Handle drives one question through the pipeline. It always produces a
// response: failures come back as a degraded response carrying an error
// code, never as a nil result. All state is request-scoped.
func (o *Orchestrator) Handle(ctx context.Context, req *Request) *models.Response {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	log := o.logger.With(map[string]interface{}{"requestId": requestID})

	ctx, span := o.tracing.StartSpan(ctx, "orchestrator.handle")
	defer span.End()

	resp := o.run(ctx, requestID, req, log)

	intentLabel := string(resp.Intent)
	if intentLabel == "" {
		intentLabel = "unknown"
	}
	status := "ok"
	if resp.Degraded {
		status = "degraded"
	}
	metrics.RequestsTotal.WithLabelValues(intentLabel).Inc()
	metrics.RequestDuration.WithLabelValues(intentLabel).Observe(time.Since(start).Seconds())
	o.obs.RecordQueryProcessed(ctx, intentLabel, status)
	o.obs.RecordQueryDuration(ctx, time.Since(start), intentLabel)

	log.Info("request finished", map[string]interface{}{
		"intent":    intentLabel,
		"degraded":  resp.Degraded,
		"errorCode": resp.ErrorCode,
		"duration":  time.Since(start).String(),
	})

	return resp
}

func (o *Orchestrator) run(ctx context.Context, requestID string, req *Request, log Logger) *models.Response {
	classified, err := o.classify(ctx, req)
	if err != nil {
		return o.degraded(requestID, "", nil, "classify", err, log)
	}
	intent := classified.Intent

	if err := ctx.Err(); err != nil {
		return o.degraded(requestID, intent, nil, "classify", err, log)
	}

	var result *models.PathResult
	switch intent {
	case models.IntentPrediction:
		result, err = o.runPrediction(ctx, req)
	case models.IntentAnalysis:
		result, err = o.runAnalysis(ctx, req)
	}
	if err != nil {
		return o.degraded(requestID, intent, nil, stageForError(err), err, log)
	}

	if err := ctx.Err(); err != nil {
		return o.degraded(requestID, intent, result, "pipeline", err, log)
	}

	synthesized, err := o.synthesizeAnswer(ctx, req, intent, result)
	if err != nil {
		// The raw result survived; hand it back with a code instead of
		// throwing the whole request away.
		resp := o.degraded(requestID, intent, result, "synthesize", err, log)
		return resp
	}

	resp := &models.Response{
		RequestID:  requestID,
		AnswerText: synthesized.AnswerText,
		ResultKind: result.Kind,
		RawResult:  result,
		Intent:     intent,
	}
	if synthesized.Fallback {
		// The language backend was down during synthesis. The deterministic
		// answer stands in, but the response must still say so.
		code := apperrors.ErrCodeSynthesisFailed
		metrics.StageFailures.WithLabelValues("synthesize", string(code)).Inc()
		log.Warn("synthesis fell back to deterministic answer", map[string]interface{}{
			"errorCode": string(code),
		})
		resp.Degraded = true
		resp.ErrorCode = string(code)
	}
	return resp
}

func (o *Orchestrator) classify(ctx context.Context, req *Request) (*classifyintent.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()
	ctx, span := o.tracing.StartSpan(ctx, "stage.classify")
	defer span.End()

	return o.classifier.Execute(ctx, &classifyintent.Input{
		Question: req.Question,
		Context:  req.Context,
	})
}

func (o *Orchestrator) runPrediction(ctx context.Context, req *Request) (*models.PathResult, error) {
	resolved, err := o.resolveFeatures(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	predicted, err := o.predict(ctx, resolved.Features)
	if err != nil {
		return nil, err
	}

	return &models.PathResult{
		Kind:  models.ResultKindPrice,
		Price: predicted.Price,
	}, nil
}

func (o *Orchestrator) resolveFeatures(ctx context.Context, req *Request) (*resolvefeatures.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()
	ctx, span := o.tracing.StartSpan(ctx, "stage.resolve_features")
	defer span.End()

	return o.resolver.Execute(ctx, &resolvefeatures.Input{
		Question: req.Question,
		Context:  req.Context,
	})
}

func (o *Orchestrator) predict(ctx context.Context, features *models.FeatureSet) (*predictprice.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()
	ctx, span := o.tracing.StartSpan(ctx, "stage.predict_price")
	defer span.End()

	return o.predictor.Execute(ctx, &predictprice.Input{Features: features})
}

func (o *Orchestrator) runAnalysis(ctx context.Context, req *Request) (*models.PathResult, error) {
	// The analysis loop owns its retry budget; the stage timeout covers the
	// whole loop, not each attempt.
	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()
	ctx, span := o.tracing.StartSpan(ctx, "stage.generate_sql")
	defer span.End()

	output, err := o.analyst.Execute(ctx, &generatesql.Input{
		Question: req.Question,
		Context:  req.Context,
	})
	if err != nil {
		return nil, err
	}

	return &models.PathResult{
		Kind: models.ResultKindRows,
		Rows: output.Result,
	}, nil
}

func (o *Orchestrator) synthesizeAnswer(ctx context.Context, req *Request, intent models.Intent, result *models.PathResult) (*synthesize.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()
	ctx, span := o.tracing.StartSpan(ctx, "stage.synthesize")
	defer span.End()

	return o.writer.Execute(ctx, &synthesize.Input{
		Question: req.Question,
		Intent:   intent,
		Result:   result,
	})
}

// degraded maps a stage failure onto the response contract. The raw result
// is preserved when a later stage failed after the path had produced one.
func (o *Orchestrator) degraded(requestID string, intent models.Intent, result *models.PathResult, stage string, err error, log Logger) *models.Response {
	code := errorCode(err)
	metrics.StageFailures.WithLabelValues(stage, string(code)).Inc()

	log.Error("stage failed", map[string]interface{}{
		"stage":     stage,
		"errorCode": string(code),
		"category":  apperrors.GetErrorCategory(code),
		"error":     err.Error(),
	})

	resp := &models.Response{
		RequestID:  requestID,
		AnswerText: degradedAnswer(code),
		Intent:     intent,
		Degraded:   true,
		ErrorCode:  string(code),
	}
	if result != nil {
		resp.ResultKind = result.Kind
		resp.RawResult = result
	}
	return resp
}

func errorCode(err error) apperrors.ErrorCode {
	switch {
	case errors.Is(err, classifyintent.ErrClassificationAmbiguous):
		return apperrors.ErrCodeClassificationAmbiguous
	case errors.Is(err, resolvefeatures.ErrFeatureExtraction):
		return apperrors.ErrCodeFeatureExtraction
	case errors.Is(err, generatesql.ErrAnalysisExhausted):
		return apperrors.ErrCodeAnalysisExhausted
	case errors.Is(err, predictprice.ErrPredictionUnavailable):
		return apperrors.ErrCodePredictionUnavailable
	case errors.Is(err, classifyintent.ErrClassifierUnavailable),
		errors.Is(err, generatesql.ErrSQLUnavailable):
		return apperrors.ErrCodeCompletionUnavailable
	case errors.Is(err, synthesize.ErrNoResult):
		return apperrors.ErrCodeSynthesisFailed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.ErrCodeInternal
	default:
		return apperrors.ErrCodeInternal
	}
}

func stageForError(err error) string {
	switch {
	case errors.Is(err, resolvefeatures.ErrFeatureExtraction):
		return "resolve_features"
	case errors.Is(err, predictprice.ErrPredictionUnavailable),
		errors.Is(err, predictprice.ErrIncompleteFeatures):
		return "predict_price"
	case errors.Is(err, generatesql.ErrAnalysisExhausted),
		errors.Is(err, generatesql.ErrSQLUnavailable):
		return "generate_sql"
	default:
		return "pipeline"
	}
}

func degradedAnswer(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.ErrCodeClassificationAmbiguous:
		return "I could not tell whether you are asking for a price estimate or a data analysis. Please rephrase the question."
	case apperrors.ErrCodeFeatureExtraction:
		return "I could not read the flat details from your question. Please try again."
	case apperrors.ErrCodeAnalysisExhausted:
		return "I could not produce a working query for that question. Try asking it a different way."
	case apperrors.ErrCodePredictionUnavailable:
		return "The price estimation service is currently unavailable. Please try again later."
	case apperrors.ErrCodeCompletionUnavailable:
		return "The language service is currently unavailable. Please try again later."
	default:
		return "Something went wrong while answering your question. Please try again."
	}
}
