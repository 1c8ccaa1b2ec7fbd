package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neej1979/mealplanner/internal/config"
)

func TestGroqClient_GenerateContent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req groqRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "hello", req.Messages[0].Content)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"model": "test-model",
				"choices": [{"message": {"role": "assistant", "content": "{\"candidates\": []}"}}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`))
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "test-key", GroqModel: "test-model", GroqBaseURL: server.URL + "/"})
		resp, err := client.GenerateContent(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, `{"candidates": []}`, resp.Content)
		assert.Equal(t, 15, resp.Usage.TotalTokens)
		assert.Equal(t, 10, resp.Usage.PromptTokens)
		assert.Equal(t, "test-model", resp.Usage.Model)
	})

	t.Run("APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "k", GroqModel: "m", GroqBaseURL: server.URL})
		_, err := client.GenerateContent(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
	})

	t.Run("NoChoices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		client := NewGroqClient(&config.Config{GroqAPIKey: "k", GroqModel: "m", GroqBaseURL: server.URL})
		_, err := client.GenerateContent(context.Background(), "hello")
		require.EqualError(t, err, "no content generated")
	})
}

func TestNewFromConfig_None(t *testing.T) {
	gen, err := NewFromConfig(context.Background(), &config.Config{LLMProvider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"{\"a\": 1}":               "{\"a\": 1}",
		"```json\n{\"a\": 1}\n```": "{\"a\": 1}",
		"```\n{\"a\": 1}\n```":     "{\"a\": 1}",
		"  \n{\"a\": 1}\n  ":       "{\"a\": 1}",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFences(in))
	}
}
