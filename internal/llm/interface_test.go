package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type echoProvider struct{ initialised bool }

func (p *echoProvider) Initialize(map[string]string) error { p.initialised = true; return nil }
func (p *echoProvider) GetName() string                    { return "echo" }
func (p *echoProvider) GetSupportedModels() []string       { return []string{"echo-1"} }
func (p *echoProvider) CompleteText(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: req.Prompt}, nil
}

func TestProviderErrorRateLimit(t *testing.T) {
	limited := &ProviderError{Provider: "x", StatusCode: http.StatusTooManyRequests, Message: "slow"}
	if !errors.Is(fmt.Errorf("wrapped: %w", limited), ErrRateLimited) {
		t.Fatal("429 should match ErrRateLimited")
	}

	other := &ProviderError{Provider: "x", StatusCode: http.StatusInternalServerError, Message: "oops"}
	if errors.Is(other, ErrRateLimited) || IsRateLimited(other) {
		t.Fatal("500 should not be a rate limit")
	}
}

func TestIsRateLimitedMessages(t *testing.T) {
	for _, msg := range []string{
		"Quota exceeded for metric",
		"status RESOURCE_EXHAUSTED",
		"rate limit reached for requests",
		"429 Too Many Requests",
	} {
		if !IsRateLimited(errors.New(msg)) {
			t.Errorf("%q should be treated as rate limited", msg)
		}
	}
	if IsRateLimited(nil) || IsRateLimited(errors.New("connection refused")) {
		t.Error("unexpected rate limit match")
	}
	if IsRateLimited(errors.New(`upstream failed, request_id "req_0142937"`)) {
		t.Error("digits in a request id must not count as a 429")
	}
}

func TestIsRateLimitedTrustsStatusCode(t *testing.T) {
	body := &ProviderError{Provider: "anthropic", StatusCode: http.StatusInternalServerError,
		Message: `{"error":"quota service unavailable","request_id":"req_0142937"}`}
	if IsRateLimited(body) {
		t.Fatal("a 500 response must not be classified by its body text")
	}
	if IsRateLimited(fmt.Errorf("wrapped: %w", body)) {
		t.Fatal("wrapping must not change the classification")
	}

	quota := &ProviderError{Provider: "google", StatusCode: http.StatusTooManyRequests, Message: "RESOURCE_EXHAUSTED"}
	if !IsRateLimited(fmt.Errorf("wrapped: %w", quota)) {
		t.Fatal("a wrapped 429 should be rate limited")
	}
}

func TestRegistry(t *testing.T) {
	Register("echo-test", func() Provider { return &echoProvider{} })

	p, err := GetProvider("echo-test", nil)
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if !p.(*echoProvider).initialised {
		t.Fatal("provider should be initialised")
	}

	if _, err := GetProvider("missing", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}

	found := false
	for _, name := range ListProviders() {
		if name == "echo-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("registered provider not listed")
	}
	if models := GetSupportedModelsForProvider("echo-test"); len(models) != 1 {
		t.Fatalf("unexpected models %v", models)
	}
}
