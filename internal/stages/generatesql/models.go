// internal/stages/generatesql/models.go
package generatesql

import "hdb-assistant/internal/models"

type Input struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	Result *models.RowsResult `json:"result"`

	// Attempts is how many loop passes the result took. 0 means the answer
	// came from the cache.
	Attempts int `json:"attempts"`

	CacheHit bool `json:"cacheHit"`
}
