// internal/models/session.go
package models

// SQLSessionState tracks where the analysis loop is in its lifecycle.
type SQLSessionState string

const (
	SQLStateGenerating SQLSessionState = "generating"
	SQLStateValidating SQLSessionState = "validating"
	SQLStateExecuting  SQLSessionState = "executing"
	SQLStateRetrying   SQLSessionState = "retrying"
	SQLStateSucceeded  SQLSessionState = "succeeded"
	SQLStateFailed     SQLSessionState = "failed"
)

// SQLAttempt records one pass through generate, validate, execute.
type SQLAttempt struct {
	Attempt       int    `json:"attempt"`
	SQL           string `json:"sql"`
	FailedStage   string `json:"failedStage,omitempty"` // generation | validation | execution
	FailureReason string `json:"failureReason,omitempty"`
}

// SQLSession is the request-scoped state of the analysis loop. It is never
// shared across requests.
type SQLSession struct {
	State    SQLSessionState `json:"state"`
	Attempts []SQLAttempt    `json:"attempts"`
}

// RecordFailure appends a failed attempt and moves the session to retrying,
// or failed when the budget is spent.
func (s *SQLSession) RecordFailure(att SQLAttempt, maxAttempts int) {
	s.Attempts = append(s.Attempts, att)
	if len(s.Attempts) >= maxAttempts {
		s.State = SQLStateFailed
		return
	}
	s.State = SQLStateRetrying
}

// CorrectiveContext returns the ordered failure history for prompt building,
// oldest attempt first.
func (s *SQLSession) CorrectiveContext() []SQLAttempt {
	out := make([]SQLAttempt, 0, len(s.Attempts))
	for _, att := range s.Attempts {
		if att.FailureReason != "" {
			out = append(out, att)
		}
	}
	return out
}
