package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Corphon/SceneForge/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := llm.GetProvider("anthropic", map[string]string{"api_key": "k", "base_url": srv.URL})
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	return p.(*Provider)
}

func TestCompleteText(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("missing api key header")
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "sys" {
			t.Errorf("system prompt not forwarded: %v", body["system"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","stop_reason":"end_turn","content":[{"type":"text","text":"**Name**: Mira"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", SystemPrompt: "sys"})
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if resp.Text != "**Name**: Mira" || resp.TokensUsed != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCompleteTextRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`))
	})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestCompleteTextServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"internal"}}`))
	})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	var perr *llm.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 500 {
		t.Fatalf("expected provider error, got %v", err)
	}
	if llm.IsRateLimited(err) {
		t.Fatal("500 should not count as rate limited")
	}
}

func TestInitializeRequiresKey(t *testing.T) {
	if _, err := llm.GetProvider("anthropic", map[string]string{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
