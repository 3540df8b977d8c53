// internal/stages/predictprice/models.go
package predictprice

import "hdb-assistant/internal/models"

type Input struct {
	Features *models.FeatureSet `json:"features"`
}

type Output struct {
	Price *models.PriceResult `json:"price"`
}
