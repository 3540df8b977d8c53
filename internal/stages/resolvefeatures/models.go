// internal/stages/resolvefeatures/models.go
package resolvefeatures

import "hdb-assistant/internal/models"

type Input struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	Features *models.FeatureSet `json:"features"`
}

// extraction is the raw variable set the language model pulled out of the
// question. Zero values mean the question did not mention the feature.
type extraction struct {
	Month       string  `json:"month"`
	Town        string  `json:"town"`
	FlatType    string  `json:"flat_type"`
	FlatModel   string  `json:"flat_model"`
	StoreyRange string  `json:"storey_range"`
	FloorArea   float64 `json:"floor_area_sqm"`
	LeaseYear   int     `json:"lease_commence_date"`
	BTO         bool    `json:"bto"`
}
