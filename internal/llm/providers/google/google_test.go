package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Corphon/SceneForge/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) llm.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := llm.GetProvider("google", map[string]string{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	return p
}

func TestCompleteText(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"rain on neon"}]},"finishReason":"STOP"}],
"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":3,"totalTokenCount":7}}`))
	})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "rain on neon", resp.Text)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestCompleteTextResourceExhausted(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.True(t, errors.Is(err, llm.ErrRateLimited), "got %v", err)
}

func TestTranslateError(t *testing.T) {
	err := translateError(genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED", Message: "daily limit"})
	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Contains(t, perr.Message, "daily limit")

	err = translateError(errors.New("dial tcp: refused"))
	assert.False(t, errors.Is(err, llm.ErrRateLimited))
	assert.Contains(t, err.Error(), "refused")
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider("google", map[string]string{})
	assert.Error(t, err)
}
