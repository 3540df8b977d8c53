// internal/stages/generatesql/handler_test.go
package generatesql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdb-assistant/internal/common/config"
	"hdb-assistant/internal/common/database"
	"hdb-assistant/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{
		t:      t,
		fields: make(map[string]interface{}),
	}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	newLogger := &TestLogger{
		t:      l.t,
		fields: make(map[string]interface{}),
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	allFields := make(map[string]interface{})
	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}
	return allFields
}

// ==========================
// Test Helper Functions
// ==========================

// scriptedCompleter returns its responses in order, one per call.
type scriptedCompleter struct {
	responses []string
	err       error
	// failFirst makes the first N calls fail before responses flow.
	failFirst int
	calls     int
	prompts   []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.failFirst > 0 {
		s.failFirst--
		return "", errors.New("completion backend unavailable")
	}
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

type stubExecutor struct {
	result   *models.RowsResult
	queryErr error
	// failFirst makes the first N executions fail before succeeding.
	failFirst int
	executed  []string
}

func (s *stubExecutor) QueryRows(ctx context.Context, query string) (*models.RowsResult, error) {
	if err := database.ValidateReadOnly(query); err != nil {
		return nil, err
	}
	s.executed = append(s.executed, query)
	if s.failFirst > 0 {
		s.failFirst--
		return nil, &database.QueryError{Reason: "relation does not exist"}
	}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.result, nil
}

func (s *stubExecutor) SampleRows(ctx context.Context, table string, limit int) (*models.RowsResult, error) {
	return &models.RowsResult{
		Columns: []string{"town", "resale_price"},
		Rows: []map[string]interface{}{
			{"town": "ANG MO KIO", "resale_price": 550000.0},
		},
	}, nil
}

func createTestConfig() *Config {
	return LoadConfig()
}

func sampleRowsResult() *models.RowsResult {
	return &models.RowsResult{
		Columns: []string{"town", "avg_price"},
		Rows: []map[string]interface{}{
			{"town": "BEDOK", "avg_price": 480000.0},
		},
	}
}

const goodSQL = "SELECT town, AVG(resale_price) AS avg_price FROM resale_prices GROUP BY town"

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FirstAttemptSucceeds(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "Average resale price per town?"})

	require.NoError(t, err)
	assert.Equal(t, 1, output.Attempts)
	assert.False(t, output.CacheHit)
	assert.Equal(t, goodSQL, output.Result.SQL)
	assert.Len(t, output.Result.Rows, 1)
}

func TestHandler_Execute_StripsMarkdownFences(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"```sql\n" + goodSQL + "\n```"}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, goodSQL, output.Result.SQL)
}

func TestHandler_Execute_RetriesOnValidationFailure(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"DELETE FROM resale_prices",
		goodSQL,
	}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Attempts)
	// The rejected statement never reached the executor.
	assert.Len(t, executor.executed, 1)
	// The second prompt carries the first failure as corrective context.
	assert.Contains(t, completer.prompts[1], "failed during validation")
	assert.Contains(t, completer.prompts[1], "DELETE FROM resale_prices")
}

func TestHandler_Execute_RetriesOnExecutionFailure(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult(), failFirst: 1}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Attempts)
	assert.Contains(t, completer.prompts[1], "failed during execution")
	assert.Contains(t, completer.prompts[1], "relation does not exist")
}

func TestHandler_Execute_ExhaustsBudget(t *testing.T) {
	// Every attempt produces a mutating statement.
	completer := &scriptedCompleter{responses: []string{"DROP TABLE resale_prices"}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	assert.Nil(t, output)
	assert.True(t, errors.Is(err, ErrAnalysisExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 3)
	for i, att := range exhausted.Attempts {
		assert.Equal(t, i+1, att.Attempt)
		assert.Equal(t, "validation", att.FailedStage)
	}
	assert.Equal(t, 3, completer.calls)
	assert.Empty(t, executor.executed)
}

func TestHandler_Execute_CorrectiveContextOrderedOldestFirst(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"UPDATE resale_prices SET resale_price = 0",
		"not sql at all",
		goodSQL,
	}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, 3, output.Attempts)

	third := completer.prompts[2]
	first := strings.Index(third, "Previous attempt 1")
	second := strings.Index(third, "Previous attempt 2")
	require.True(t, first >= 0 && second >= 0)
	assert.Less(t, first, second)
}

func TestHandler_Execute_UnknownTableRejected(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"SELECT * FROM users"}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Question: "who are the users?"})

	assert.True(t, errors.Is(err, ErrAnalysisExhausted))
	assert.Empty(t, executor.executed)
}

func TestHandler_Execute_CompleterFailureConsumesAttempt(t *testing.T) {
	// A transient completion failure spends an attempt, then the retry
	// succeeds inside the same budget.
	completer := &scriptedCompleter{failFirst: 1, responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Attempts)
	assert.Len(t, completer.prompts, 2)
	assert.Contains(t, completer.prompts[1], "failed during generation")
}

func TestHandler_Execute_CompleterDownExhaustsBudget(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("backend down")}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	assert.Nil(t, output)
	assert.True(t, errors.Is(err, ErrAnalysisExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 3)
	for _, att := range exhausted.Attempts {
		assert.Equal(t, "generation", att.FailedStage)
	}
	assert.Len(t, completer.prompts, 3)
	assert.Empty(t, executor.executed)
}

func TestHandler_Execute_ZeroAttemptBudgetClampedToOne(t *testing.T) {
	cfg := createTestConfig()
	cfg.MaxAttempts = 0

	completer := &scriptedCompleter{responses: []string{"DROP TABLE resale_prices"}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(cfg, completer, executor, nil, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	assert.Nil(t, output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 attempts")

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 1)
}

func TestHandler_Execute_PromptIncludesSchemaAndSamples(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, nil, NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "Table resale_prices")
	assert.Contains(t, prompt, "Table bto_prices")
	assert.Contains(t, prompt, "Sample rows:")
	assert.Contains(t, prompt, "ANG MO KIO")
}

func TestHandler_Execute_CacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer cache.Close()

	completer := &scriptedCompleter{responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, cache, NewTestLogger(t))

	first, err := handler.Execute(context.Background(), &Input{Question: "Average price per town?"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Same question, different whitespace and case, must hit the cache
	// without touching the model again.
	second, err := handler.Execute(context.Background(), &Input{Question: "  average PRICE per town?  "})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Result.Rows, second.Result.Rows)
	assert.Equal(t, 1, completer.calls)
}

func TestHandler_Execute_CacheFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer cache.Close()

	// Kill the server so every cache call errors.
	mr.Close()

	completer := &scriptedCompleter{responses: []string{goodSQL}}
	executor := &stubExecutor{result: sampleRowsResult()}
	handler := NewHandler(createTestConfig(), completer, executor, cache, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Question: "avg?"})

	require.NoError(t, err)
	assert.Equal(t, 1, output.Attempts)
}

func TestHandler_Validate_TableReferences(t *testing.T) {
	handler := NewHandler(createTestConfig(), &scriptedCompleter{}, &stubExecutor{}, nil, NewTestLogger(t))

	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{
			name: "known table",
			sql:  goodSQL,
		},
		{
			name: "aliased join of both tables",
			sql:  "SELECT r.town FROM resale_prices r JOIN bto_prices b ON r.town = b.town",
		},
		{
			name: "subquery over known table",
			sql:  "SELECT AVG(p) FROM (SELECT resale_price AS p FROM resale_prices) sub",
		},
		{
			name: "cte over known table",
			sql:  "WITH latest AS (SELECT * FROM resale_prices WHERE month = '2025-01') SELECT town FROM latest",
		},
		{
			name:    "unknown table",
			sql:     "SELECT * FROM users",
			wantErr: `unknown table "users"`,
		},
		{
			name:    "known name as prefix of unknown table",
			sql:     "SELECT * FROM resale_prices_backup",
			wantErr: `unknown table "resale_prices_backup"`,
		},
		{
			name:    "no table at all",
			sql:     "SELECT 1",
			wantErr: "references no known table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.validate(tt.sql)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"bare statement", goodSQL, goodSQL},
		{"fenced", "```sql\n" + goodSQL + "\n```", goodSQL},
		{"fenced uppercase tag", "```SQL\n" + goodSQL + "\n```", goodSQL},
		{"prose prefix", "Here is the query:\n" + goodSQL, goodSQL},
		{"with clause", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH t AS (SELECT 1) SELECT * FROM t"},
		{"nothing usable", "I cannot answer that", "I cannot answer that"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSQL(tt.text))
		})
	}
}
