// internal/common/genai/client_test.go
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hdb-assistant/internal/common/config"
	"hdb-assistant/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func createTestClient(t *testing.T, baseURL string) *Client {
	cfg := &config.Config{}
	cfg.APIs.GenAI.BaseURL = baseURL
	cfg.APIs.GenAI.APIKey = "test-key"
	cfg.APIs.GenAI.Model = "gemini-2.5-flash"
	cfg.APIs.GenAI.Timeout = 5000
	cfg.APIs.GenAI.MaxRetries = 2
	cfg.APIs.GenAI.MaxTokens = 1024
	return NewClient(cfg, logger.NewTestLogger(t))
}

func candidateResponse(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{"text": text},
					},
				},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.NotEmpty(t, reqBody["contents"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candidateResponse("  4-room flats in Ang Mo Kio averaged S$580,000.  ")))
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	text, err := client.Complete(context.Background(), "average price?")

	assert.NoError(t, err)
	assert.Equal(t, "4-room flats in Ang Mo Kio averaged S$580,000.", text)
}

func TestClient_CompleteJSON_SetsMimeType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		genCfg := reqBody["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", genCfg["responseMimeType"])

		w.Write([]byte(candidateResponse(`{"action": "analysis"}`)))
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	text, err := client.CompleteJSON(context.Background(), "classify this")

	assert.NoError(t, err)
	assert.JSONEq(t, `{"action": "analysis"}`, text)
}

func TestClient_Complete_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(candidateResponse("ok")))
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	text, err := client.Complete(context.Background(), "p")

	assert.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, attempts)
}

func TestClient_Complete_TerminalOnBadRequest(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	_, err := client.Complete(context.Background(), "p")

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletionUnavailable))
	assert.Equal(t, 1, attempts)
}

func TestClient_Complete_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	_, err := client.Complete(context.Background(), "p")

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletionUnavailable))
}

func TestClient_Complete_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(candidateResponse("late")))
	}))
	defer server.Close()

	client := createTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, "p")
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletionUnavailable))
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestClient_Complete_MissingAPIKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.APIs.GenAI.BaseURL = "http://localhost:1"
	cfg.APIs.GenAI.Timeout = 1000
	client := NewClient(cfg, logger.NewNoOpLogger())

	_, err := client.Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrCompletionUnavailable))
}
