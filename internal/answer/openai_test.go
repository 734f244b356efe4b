package answer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vivenda-labs/ragd/internal/answer"
	"go.uber.org/zap"
)

func newOpenAIStub(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func TestOpenAIGeneratorSuccess(t *testing.T) {
	srv := newOpenAIStub(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]interface{})
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "A piscina abre às 8h."}},
			},
		})
	})
	defer srv.Close()

	gen, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "A piscina abre às 8h.", text)
}

func TestOpenAIGeneratorRateLimited(t *testing.T) {
	srv := newOpenAIStub(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Rate limit reached",
				"type":    "requests",
			},
		})
	})
	defer srv.Close()

	gen, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "system", "user")
	assert.ErrorIs(t, err, answer.ErrRateLimited)
}

func TestOpenAIGeneratorServerError(t *testing.T) {
	srv := newOpenAIStub(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "boom", "type": "server_error"},
		})
	})
	defer srv.Close()

	gen, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "system", "user")
	assert.ErrorIs(t, err, answer.ErrGenerationFailed)
}

func TestOpenAIGeneratorRequiresAPIKey(t *testing.T) {
	_, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{}, zap.NewNop())
	assert.Error(t, err)
}
