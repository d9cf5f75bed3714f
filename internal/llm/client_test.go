package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/queryforge/internal/errors"
)

func openAIServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.WriteHeader(status)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))

	t.Cleanup(server.Close)

	return server
}

func newOpenAIClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Provider: ProviderOpenAI,
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	return client
}

func TestGenerateOpenAI(t *testing.T) {
	content := `{"sql": "SELECT COUNT(*) FROM orders", "explanation": "counts orders", "confidence": 0.9, "tables": ["orders"]}`
	server := openAIServer(t, content, http.StatusOK)

	client := newOpenAIClient(t, server.URL)

	candidate, err := client.Generate(context.Background(), Request{
		Question:      "how many orders",
		SchemaContext: "Tables:\n  orders(*id, amount)\n",
	})

	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", candidate.Statement)
	assert.Equal(t, 0.9, candidate.Confidence)
	assert.Equal(t, []string{"orders"}, candidate.TablesReferenced)
}

func TestGenerateToleratesWrappedJSON(t *testing.T) {
	content := "Here you go:\n```json\n{\"sql\": \"SELECT 1\", \"confidence\": 0.8}\n```"
	server := openAIServer(t, content, http.StatusOK)

	client := newOpenAIClient(t, server.URL)

	candidate, err := client.Generate(context.Background(), Request{Question: "x"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", candidate.Statement)
}

func TestGenerateHTTPErrorIsProviderError(t *testing.T) {
	server := openAIServer(t, "", http.StatusInternalServerError)

	client := newOpenAIClient(t, server.URL)

	_, err := client.Generate(context.Background(), Request{Question: "x"})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeProvider))
}

func TestGenerateEmptySQLIsProviderError(t *testing.T) {
	server := openAIServer(t, `{"sql": "", "confidence": 0.9}`, http.StatusOK)

	client := newOpenAIClient(t, server.URL)

	_, err := client.Generate(context.Background(), Request{Question: "x"})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeProvider))
}

func TestGenerateClampsConfidence(t *testing.T) {
	server := openAIServer(t, `{"sql": "SELECT 1", "confidence": 7.5}`, http.StatusOK)

	client := newOpenAIClient(t, server.URL)

	candidate, err := client.Generate(context.Background(), Request{Question: "x"})

	require.NoError(t, err)
	assert.Equal(t, 0.5, candidate.Confidence)
}

func TestGenerateOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]any{
			"response": `{"sql": "SELECT name FROM users LIMIT 10", "confidence": 0.7}`,
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Provider: ProviderOllama,
		Model:    "llama3",
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	candidate, err := client.Generate(context.Background(), Request{Question: "list users"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users LIMIT 10", candidate.Statement)
}

func TestGenerateAnthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `{"sql": "SELECT 1", "confidence": 0.8}`},
			},
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Provider: ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	candidate, err := client.Generate(context.Background(), Request{Question: "x"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", candidate.Statement)
}

func TestBuildPromptIncludesFeedbackAndSchema(t *testing.T) {
	client := newOpenAIClient(t, "http://unused")

	prompt := client.buildPrompt(Request{
		Question:      "how many orders",
		SchemaContext: "Tables:\n  orders(*id)\n",
		Category:      "aggregation",
		Feedback:      "The previous SQL had these problems:\n- unknown_table: x",
	})

	assert.Contains(t, prompt, "orders(*id)")
	assert.Contains(t, prompt, "Query shape: aggregation")
	assert.Contains(t, prompt, "unknown_table")
	assert.Contains(t, prompt, "Question: how many orders")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid openai", Config{Provider: ProviderOpenAI, Model: "m", APIKey: "k"}, false},
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "m"}, true},
		{"ollama needs no key", Config{Provider: ProviderOllama, Model: "m"}, false},
		{"missing provider", Config{Model: "m"}, true},
		{"missing model", Config{Provider: ProviderOllama}, true},
		{"unknown provider", Config{Provider: "mystery", Model: "m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	config := Config{Provider: ProviderOllama, Model: "llama3"}

	require.NoError(t, config.Validate())
	assert.Equal(t, "http://localhost:11434", config.BaseURL)
	assert.Equal(t, 60*time.Second, config.Timeout)
}
