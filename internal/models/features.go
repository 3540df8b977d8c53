// internal/models/features.go
package models

// Feature names of the resale pricing model. Every one must be bound before
// the model is called.
const (
	FeatureMonth       = "month"
	FeatureTown        = "town"
	FeatureFlatType    = "flat_type"
	FeatureFlatModel   = "flat_model"
	FeatureStoreyRange = "storey_range"
	FeatureFloorArea   = "floor_area_sqm"
	FeatureLeaseYear   = "lease_commence_date"
)

// RequiredFeatures lists every feature the model needs, in payload order.
var RequiredFeatures = []string{
	FeatureMonth,
	FeatureTown,
	FeatureFlatType,
	FeatureFlatModel,
	FeatureStoreyRange,
	FeatureFloorArea,
	FeatureLeaseYear,
}

// FeatureSet is the complete input to the pricing model. Fields use the
// dataset's canonical uppercase vocabulary.
type FeatureSet struct {
	Month       string  `json:"month"`
	Town        string  `json:"town"`
	FlatType    string  `json:"flat_type"`
	FlatModel   string  `json:"flat_model"`
	StoreyRange string  `json:"storey_range"`
	FloorArea   float64 `json:"floor_area_sqm"`
	LeaseYear   int     `json:"lease_commence_date"`

	// BTO marks the query as concerning a new build-to-order flat rather
	// than a resale transaction.
	BTO bool `json:"bto,omitempty"`

	// Defaulted records which features were filled in rather than extracted.
	Defaulted []string `json:"defaulted,omitempty"`
}

// MissingFeatures returns the names of features still unbound.
func (f *FeatureSet) MissingFeatures() []string {
	var missing []string
	if f.Month == "" {
		missing = append(missing, FeatureMonth)
	}
	if f.Town == "" {
		missing = append(missing, FeatureTown)
	}
	if f.FlatType == "" {
		missing = append(missing, FeatureFlatType)
	}
	if f.FlatModel == "" {
		missing = append(missing, FeatureFlatModel)
	}
	if f.StoreyRange == "" {
		missing = append(missing, FeatureStoreyRange)
	}
	if f.FloorArea == 0 {
		missing = append(missing, FeatureFloorArea)
	}
	if f.LeaseYear == 0 {
		missing = append(missing, FeatureLeaseYear)
	}
	return missing
}

// Complete reports whether every required feature is bound.
func (f *FeatureSet) Complete() bool {
	return len(f.MissingFeatures()) == 0
}
