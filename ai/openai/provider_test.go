package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poiesic/querysafe/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.DefaultConfig())
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Generator())
	assert.NotNil(t, provider.Captioner())
	assert.Equal(t, "all-minilm", provider.Embedder().Model())
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(&ai.Config{})
	assert.Error(t, err)
}

func TestGenerator_Generate(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "qwen2.5:3b",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Refunds take five days."},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	gen, err := NewGenerator(ai.NewConfig(ai.WithHost(server.URL)))
	require.NoError(t, err)

	answer, err := gen.Generate(context.Background(), "How long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, "Refunds take five days.", answer)
	assert.Contains(t, gotBody, "How long do refunds take?")
}
