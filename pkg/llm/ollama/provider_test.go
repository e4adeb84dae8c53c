package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-advisor-be/pkg/aihttp"
	"course-advisor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "llama3", raw["model"])
		assert.Equal(t, false, raw["stream"])
		// the reply must stay a bare JSON array, so no format constraint is sent
		assert.NotContains(t, raw, "format")

		opts := raw["options"].(map[string]interface{})
		assert.Equal(t, 0.2, opts["temperature"])
		assert.Equal(t, float64(64), opts["num_predict"])

		msgs := raw["messages"].([]interface{})
		require.Len(t, msgs, 2)
		assert.Equal(t, llm.RoleSystem, msgs[0].(map[string]interface{})["role"])

		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"[]"},"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3", time.Second)
	out, err := llm.Complete(context.Background(), p, "system", "user",
		llm.WithTemperature(0.2), llm.WithMaxTokens(64))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestOllamaProvider_UnavailableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama3", time.Second).Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, aihttp.IsTransient(err))
}
