// internal/stages/resolvefeatures/handler_test.go
package resolvefeatures

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

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

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func createTestConfig() *Config {
	return LoadConfig()
}

func resolve(t *testing.T, question, response string) (*Output, error) {
	t.Helper()
	handler := NewHandler(createTestConfig(), &stubCompleter{response: response}, NewTestLogger(t))
	return handler.Execute(context.Background(), &Input{Question: question})
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FullExtraction(t *testing.T) {
	output, err := resolve(t,
		"How much is a 5 room flat in Ang Mo Kio, built 1995, 110 sqm, storeys 10 to 12?",
		`{"town": "ang mo kio", "flat_type": "5-room", "floor_area_sqm": 110,
		  "lease_commence_date": 1995, "storey_range": "10 to 12"}`)

	assert.NoError(t, err)
	f := output.Features
	assert.Equal(t, "ANG MO KIO", f.Town)
	assert.Equal(t, "5 ROOM", f.FlatType)
	assert.Equal(t, 110.0, f.FloorArea)
	assert.Equal(t, 1995, f.LeaseYear)
	assert.Equal(t, "10 TO 12", f.StoreyRange)
	assert.True(t, f.Complete())

	// Month and flat model were not mentioned and must be defaulted.
	assert.Equal(t, "2025-01", f.Month)
	assert.Equal(t, "IMPROVED", f.FlatModel)
	assert.Contains(t, f.Defaulted, models.FeatureMonth)
	assert.Contains(t, f.Defaulted, models.FeatureFlatModel)
	assert.NotContains(t, f.Defaulted, models.FeatureTown)
}

func TestHandler_Execute_TotalDefaulting(t *testing.T) {
	// Nothing extractable: every feature comes from defaults and the set is
	// still complete.
	output, err := resolve(t, "What would a flat cost?", `{}`)

	assert.NoError(t, err)
	f := output.Features
	assert.True(t, f.Complete())
	assert.Equal(t, "ANG MO KIO", f.Town)
	assert.Equal(t, "4 ROOM", f.FlatType)
	assert.Equal(t, "IMPROVED", f.FlatModel)
	assert.Equal(t, "07 TO 09", f.StoreyRange)
	assert.Equal(t, 93.0, f.FloorArea)
	assert.Equal(t, 2025, f.LeaseYear)
	assert.Len(t, f.Defaulted, 7)
}

func TestHandler_Execute_OutOfVocabularyFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		response string
		check    func(t *testing.T, f *models.FeatureSet)
	}{
		{
			name:     "unknown town",
			response: `{"town": "ATLANTIS"}`,
			check: func(t *testing.T, f *models.FeatureSet) {
				assert.Equal(t, "ANG MO KIO", f.Town)
				assert.Contains(t, f.Defaulted, models.FeatureTown)
			},
		},
		{
			name:     "floor area below dataset range",
			response: `{"flat_type": "3-room", "floor_area_sqm": 12}`,
			check: func(t *testing.T, f *models.FeatureSet) {
				assert.Equal(t, 68.0, f.FloorArea)
				assert.Contains(t, f.Defaulted, models.FeatureFloorArea)
			},
		},
		{
			name:     "lease year out of range",
			response: `{"lease_commence_date": 1890}`,
			check: func(t *testing.T, f *models.FeatureSet) {
				assert.Equal(t, 2025, f.LeaseYear)
				assert.Contains(t, f.Defaulted, models.FeatureLeaseYear)
			},
		},
		{
			name:     "malformed month",
			response: `{"month": "January 2025"}`,
			check: func(t *testing.T, f *models.FeatureSet) {
				assert.Equal(t, "2025-01", f.Month)
				assert.Contains(t, f.Defaulted, models.FeatureMonth)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := resolve(t, "flat price?", tt.response)
			assert.NoError(t, err)
			assert.True(t, output.Features.Complete())
			tt.check(t, output.Features)
		})
	}
}

func TestHandler_Execute_MedianAreaFollowsFlatType(t *testing.T) {
	output, err := resolve(t, "Executive flat in Tampines?",
		`{"town": "tampines", "flat_type": "executive"}`)

	assert.NoError(t, err)
	assert.Equal(t, "EXECUTIVE", output.Features.FlatType)
	assert.Equal(t, 146.0, output.Features.FloorArea)
}

func TestHandler_Execute_BTODetection(t *testing.T) {
	tests := []struct {
		name     string
		question string
		response string
		bto      bool
	}{
		{"flagged by extractor", "new flat in Punggol", `{"town": "punggol", "bto": true}`, true},
		{"bto keyword in question", "BTO price in Punggol?", `{"town": "punggol"}`, true},
		{"build-to-order phrase", "build-to-order flat cost?", `{}`, true},
		{"resale question", "resale flat in Punggol?", `{"town": "punggol"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := resolve(t, tt.question, tt.response)
			assert.NoError(t, err)
			assert.Equal(t, tt.bto, output.Features.BTO)
		})
	}
}

func TestHandler_Execute_ExtractionFailures(t *testing.T) {
	t.Run("completer unreachable", func(t *testing.T) {
		handler := NewHandler(createTestConfig(), &stubCompleter{err: errors.New("timeout")}, NewTestLogger(t))
		output, err := handler.Execute(context.Background(), &Input{Question: "price?"})

		assert.Nil(t, output)
		assert.True(t, errors.Is(err, ErrFeatureExtraction))
	})

	t.Run("malformed structure", func(t *testing.T) {
		output, err := resolve(t, "price?", `{"floor_area_sqm": "ninety"}`)

		assert.Nil(t, output)
		assert.True(t, errors.Is(err, ErrFeatureExtraction))
	})
}

func TestValidMonth(t *testing.T) {
	assert.True(t, validMonth("2025-01"))
	assert.True(t, validMonth("1999-12"))
	assert.False(t, validMonth("2025-13"))
	assert.False(t, validMonth("2025-00"))
	assert.False(t, validMonth("2025/01"))
	assert.False(t, validMonth(""))
}
