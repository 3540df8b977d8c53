// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hdb-assistant/internal/common/config"
	"hdb-assistant/internal/models"

	_ "github.com/lib/pq"
)

// ErrNotReadOnly is returned for statements the executor refuses to run.
var ErrNotReadOnly = errors.New("QUERY_NOT_READ_ONLY")

// QueryError wraps an execution failure with the reason the analysis loop
// feeds back into the next generation attempt.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("QUERY_ERROR: %s", e.Reason)
}

// mutatingKeywords are rejected anywhere in a statement.
var mutatingKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"truncate", "grant", "revoke", "copy", "vacuum", "merge",
}

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// NewPostgresFromDB wraps an existing connection, used by tests with sqlmock.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// ValidateReadOnly rejects anything that is not a single SELECT or WITH
// statement free of mutating keywords.
func ValidateReadOnly(query string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if trimmed == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", ErrNotReadOnly)
	}

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ')' || r == ','
	}) {
		for _, kw := range mutatingKeywords {
			if word == kw {
				return fmt.Errorf("%w: forbidden keyword %q", ErrNotReadOnly, kw)
			}
		}
	}

	return nil
}

// QueryRows runs a read-only statement and scans every row into a generic
// column/value map. Non-read-only statements are rejected before touching
// the database.
func (c *PostgresClient) QueryRows(ctx context.Context, query string) (*models.RowsResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Reason: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Reason: err.Error()}
	}

	result := &models.RowsResult{
		Columns: columns,
		Rows:    []map[string]interface{}{},
		SQL:     query,
	}

	values := make([]interface{}, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, &QueryError{Reason: err.Error()}
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, &QueryError{Reason: err.Error()}
	}

	return result, nil
}

// SampleRows fetches up to limit rows from a table for prompt context. The
// table name comes from the static schema registry, never from user input.
func (c *PostgresClient) SampleRows(ctx context.Context, table string, limit int) (*models.RowsResult, error) {
	return c.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
}
