// internal/stages/generatesql/handler.go
package generatesql

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hdb-assistant/internal/common/database"
	"hdb-assistant/internal/common/metrics"
	"hdb-assistant/internal/models"
)

const (
	StageName = "generate-sql"
)

var (
	ErrAnalysisExhausted = errors.New("ANALYSIS_EXHAUSTED")
	ErrSQLUnavailable    = errors.New("SQL_BACKEND_UNAVAILABLE")
)

// knownTables is the whole queryable surface. Generated statements touching
// anything else fail validation.
var knownTables = []string{"resale_prices", "bto_prices"}

const schemaDescription = `Table resale_prices (historical resale transactions):
  month TEXT            -- transaction month, 'YYYY-MM'
  town TEXT             -- uppercase town name, e.g. 'ANG MO KIO'
  flat_type TEXT        -- e.g. '4 ROOM', 'EXECUTIVE'
  flat_model TEXT       -- e.g. 'IMPROVED', 'MODEL A'
  block TEXT
  street_name TEXT
  storey_range TEXT     -- e.g. '07 TO 09'
  floor_area_sqm REAL
  lease_commence_date INTEGER
  resale_price REAL     -- SGD

Table bto_prices (build-to-order launch prices):
  month TEXT
  town TEXT
  flat_type TEXT
  min_price REAL
  max_price REAL`

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

// Executor runs read-only statements against the dataset.
type Executor interface {
	QueryRows(ctx context.Context, query string) (*models.RowsResult, error)
	SampleRows(ctx context.Context, table string, limit int) (*models.RowsResult, error)
}

// Cache stores finished results keyed by normalized question. Optional.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// ExhaustedError carries the full attempt history once the retry budget is
// spent.
type ExhaustedError struct {
	Attempts []models.SQLAttempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "ANALYSIS_EXHAUSTED: no attempts recorded"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("ANALYSIS_EXHAUSTED: %d attempts, last failure at %s: %s",
		len(e.Attempts), last.FailedStage, last.FailureReason)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrAnalysisExhausted
}

type Handler struct {
	config    *Config
	completer Completer
	executor  Executor
	cache     Cache
	logger    Logger

	sampleOnce  sync.Once
	sampleBlock string
}

// NewHandler wires the loop. cache may be nil, caching is then skipped.
func NewHandler(config *Config, completer Completer, executor Executor, cache Cache, log Logger) *Handler {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Handler{
		config:    config,
		completer: completer,
		executor:  executor,
		cache:     cache,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	cacheKey := h.cacheKey(input.Question)

	if cached := h.cacheLookup(ctx, cacheKey); cached != nil {
		metrics.CacheHits.WithLabelValues("hit").Inc()
		return &Output{Result: cached, CacheHit: true}, nil
	}
	if h.cache != nil {
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	// Loop state lives on the stack of this call. Nothing is shared across
	// requests.
	session := &models.SQLSession{State: models.SQLStateGenerating}

	for attempt := 1; attempt <= h.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSQLUnavailable, ctx.Err())
		}

		result, err := h.runAttempt(ctx, input, session, attempt)
		if err != nil {
			return nil, err
		}
		if result != nil {
			session.State = models.SQLStateSucceeded
			metrics.SQLAttempts.Observe(float64(attempt))

			h.logger.Info("analysis query succeeded", map[string]interface{}{
				"attempt": attempt,
				"rows":    len(result.Rows),
			})

			h.cacheStore(ctx, cacheKey, result)
			return &Output{Result: result, Attempts: attempt}, nil
		}
	}

	metrics.SQLAttempts.Observe(float64(h.config.MaxAttempts))
	h.logger.Error("analysis budget exhausted", map[string]interface{}{
		"attempts": len(session.Attempts),
	})
	return nil, &ExhaustedError{Attempts: session.Attempts}
}

// runAttempt drives one generate-validate-execute pass. A nil result with a
// nil error means the failure was recorded on the session and the loop may
// retry. A non-nil error aborts the loop.
func (h *Handler) runAttempt(ctx context.Context, input *Input, session *models.SQLSession, attempt int) (*models.RowsResult, error) {
	session.State = models.SQLStateGenerating
	raw, err := h.completer.Complete(ctx, h.buildPrompt(ctx, input, session))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSQLUnavailable, ctx.Err())
		}
		// A failed completion spends an attempt like any other failure;
		// transient backend errors get retried inside the budget.
		h.logger.Warn("completion failed", map[string]interface{}{
			"attempt": attempt,
			"reason":  err.Error(),
		})
		session.RecordFailure(models.SQLAttempt{
			Attempt:       attempt,
			FailedStage:   "generation",
			FailureReason: err.Error(),
		}, h.config.MaxAttempts)
		return nil, nil
	}

	sql := extractSQL(raw)
	if sql == "" {
		session.RecordFailure(models.SQLAttempt{
			Attempt:       attempt,
			FailedStage:   "generation",
			FailureReason: "completion contained no SQL statement",
		}, h.config.MaxAttempts)
		return nil, nil
	}

	session.State = models.SQLStateValidating
	if err := h.validate(sql); err != nil {
		h.logger.Warn("generated SQL rejected", map[string]interface{}{
			"attempt": attempt,
			"reason":  err.Error(),
		})
		session.RecordFailure(models.SQLAttempt{
			Attempt:       attempt,
			SQL:           sql,
			FailedStage:   "validation",
			FailureReason: err.Error(),
		}, h.config.MaxAttempts)
		return nil, nil
	}

	session.State = models.SQLStateExecuting
	result, err := h.executor.QueryRows(ctx, sql)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSQLUnavailable, ctx.Err())
		}
		h.logger.Warn("generated SQL failed to execute", map[string]interface{}{
			"attempt": attempt,
			"reason":  err.Error(),
		})
		session.RecordFailure(models.SQLAttempt{
			Attempt:       attempt,
			SQL:           sql,
			FailedStage:   "execution",
			FailureReason: err.Error(),
		}, h.config.MaxAttempts)
		return nil, nil
	}

	result.SQL = sql
	return result, nil
}

func (h *Handler) validate(sql string) error {
	if err := database.ValidateReadOnly(sql); err != nil {
		return err
	}

	tables, ctes := referencedTables(sql)
	foundKnown := false
	for _, table := range tables {
		switch {
		case tableKnown(table):
			foundKnown = true
		case ctes[table]:
		default:
			return fmt.Errorf("statement references unknown table %q", table)
		}
	}
	if !foundKnown {
		return fmt.Errorf("statement references no known table (%s)", strings.Join(knownTables, ", "))
	}
	return nil
}

func tableKnown(name string) bool {
	for _, t := range knownTables {
		if t == name {
			return true
		}
	}
	return false
}

// referencedTables collects the relation names after FROM and JOIN keywords,
// plus the CTE names a WITH statement defines. Subqueries are skipped; their
// own FROM clauses are scanned on their own.
func referencedTables(sql string) ([]string, map[string]bool) {
	fields := strings.FieldsFunc(strings.ToLower(sql), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '(', ')', ',', ';':
			return true
		}
		return false
	})

	ctes := make(map[string]bool)
	var tables []string
	for i, field := range fields {
		if (field == "from" || field == "join") && i+1 < len(fields) {
			if next := fields[i+1]; next != "select" {
				tables = append(tables, next)
			}
		}
		if field == "as" && i > 0 && fields[0] == "with" {
			ctes[fields[i-1]] = true
		}
	}
	return tables, ctes
}

func (h *Handler) buildPrompt(ctx context.Context, input *Input, session *models.SQLSession) string {
	var b strings.Builder
	b.WriteString("Write one PostgreSQL SELECT statement that answers the question below.\n")
	b.WriteString("Use only the tables described. Respond with the SQL only, no explanation.\n\n")
	b.WriteString(schemaDescription)
	b.WriteString("\n\n")

	if samples := h.sampleRows(ctx); samples != "" {
		b.WriteString("Sample rows:\n")
		b.WriteString(samples)
		b.WriteString("\n")
	}

	// Prior failures go in oldest first so the model sees how its fixes
	// have evolved.
	for _, att := range session.CorrectiveContext() {
		b.WriteString(fmt.Sprintf("Previous attempt %d failed during %s: %s\n",
			att.Attempt, att.FailedStage, att.FailureReason))
		if att.SQL != "" {
			b.WriteString("Its SQL was:\n" + att.SQL + "\n")
		}
		b.WriteString("Produce a corrected statement.\n\n")
	}

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

// sampleRows serializes a few rows per table for the prompt, fetched once
// per handler lifetime. Failures just leave the prompt without samples.
func (h *Handler) sampleRows(ctx context.Context) string {
	h.sampleOnce.Do(func() {
		var b strings.Builder
		for _, table := range knownTables {
			result, err := h.executor.SampleRows(ctx, table, h.config.SampleRowLimit)
			if err != nil {
				h.logger.Warn("sample rows unavailable", map[string]interface{}{
					"table": table,
					"error": err.Error(),
				})
				continue
			}
			rows, _ := json.Marshal(result.Rows)
			b.WriteString(table + ": ")
			b.Write(rows)
			b.WriteString("\n")
		}
		h.sampleBlock = b.String()
	})
	return h.sampleBlock
}

func (h *Handler) cacheKey(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return "analysis:" + hex.EncodeToString(sum[:])
}

func (h *Handler) cacheLookup(ctx context.Context, key string) *models.RowsResult {
	if h.cache == nil {
		return nil
	}
	raw, err := h.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	var result models.RowsResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		h.logger.Warn("discarding unreadable cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}
	return &result
}

func (h *Handler) cacheStore(ctx context.Context, key string, result *models.RowsResult) {
	if h.cache == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, string(payload), h.config.CacheTTL); err != nil {
		h.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// extractSQL strips markdown fences and surrounding prose from a completion.
func extractSQL(text string) string {
	trimmed := strings.TrimSpace(text)

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "sql")
		rest = strings.TrimPrefix(rest, "SQL")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		trimmed = strings.TrimSpace(rest)
	}

	upper := strings.ToUpper(trimmed)
	for _, prefix := range []string{"SELECT", "WITH"} {
		if idx := strings.Index(upper, prefix); idx > 0 {
			trimmed = trimmed[idx:]
			break
		}
	}
	return strings.TrimSpace(trimmed)
}
