// internal/models/result.go
package models

// ResultKind discriminates the two raw result shapes.
type ResultKind string

const (
	ResultKindRows  ResultKind = "rows"
	ResultKindPrice ResultKind = "price"
)

// RowsResult is the raw outcome of a successful analysis query.
type RowsResult struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	SQL     string                   `json:"sql"`
}

// PriceResult is the raw outcome of the prediction path.
type PriceResult struct {
	EstimateSGD float64 `json:"estimateSgd"`
	// ResaleSGD is the unadjusted model output. Equal to EstimateSGD unless
	// the BTO discount was applied.
	ResaleSGD      float64     `json:"resaleSgd"`
	BTOAdjusted    bool        `json:"btoAdjusted"`
	DiscountRate   float64     `json:"discountRate,omitempty"`
	RemainingLease int         `json:"remainingLease,omitempty"`
	Features       *FeatureSet `json:"features"`
}

// PathResult carries whichever raw result the chosen path produced.
type PathResult struct {
	Kind  ResultKind   `json:"kind"`
	Rows  *RowsResult  `json:"rows,omitempty"`
	Price *PriceResult `json:"price,omitempty"`
}

// Response is what the engine hands back for every request, degraded or not.
type Response struct {
	RequestID  string      `json:"requestId"`
	AnswerText string      `json:"answerText"`
	ResultKind ResultKind  `json:"resultKind,omitempty"`
	RawResult  *PathResult `json:"rawResult,omitempty"`
	Intent     Intent      `json:"intent,omitempty"`
	Degraded   bool        `json:"degraded"`
	ErrorCode  string      `json:"errorCode,omitempty"`
}
