package openai

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

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, 0.1, req.Temperature)
		assert.Equal(t, 50, req.MaxTokens)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("sk-test", srv.URL, "gpt-test", time.Second)
	out, err := llm.Complete(context.Background(), p, "system", "user",
		llm.WithTemperature(0.1), llm.WithMaxTokens(50))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestProvider_ErrorsAreProviderErrors(t *testing.T) {
	cases := map[string]struct {
		status    int
		body      string
		transient bool
	}{
		"rate limited":   {http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true},
		"bad request":    {http.StatusBadRequest, `{"error":{"message":"bad"}}`, false},
		"api error body": {http.StatusOK, `{"error":{"message":"quota"}}`, false},
		"no choices":     {http.StatusOK, `{"choices":[]}`, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewProvider("", srv.URL, "m", time.Second).Generate(context.Background(), "hi")
			assert.ErrorIs(t, err, aihttp.ErrProvider)
			assert.Equal(t, tc.transient, aihttp.IsTransient(err))
		})
	}
}
