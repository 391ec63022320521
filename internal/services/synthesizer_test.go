package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/llm"
	"github.com/Corphon/SceneForge/internal/models"
)

func TestSynthesizeReturnsTextUnmodified(t *testing.T) {
	raw := "  **Name**: Mira\n\n trailing spaces  "
	gen := &fakeGenerator{respond: textResponse(raw)}

	text, err := NewSynthesizer(gen).Synthesize(context.Background(), models.SynthesisRequest{Concept: "x"})
	require.NoError(t, err)
	assert.Equal(t, raw, text)
}

func TestSynthesizeClassifiesRateLimits(t *testing.T) {
	cases := map[string]error{
		"provider 429":       &llm.ProviderError{Provider: "google", StatusCode: http.StatusTooManyRequests, Message: "slow down"},
		"sentinel":           llm.ErrRateLimited,
		"quota message":      errors.New("You exceeded your current quota"),
		"resource exhausted": errors.New("rpc error: RESOURCE_EXHAUSTED"),
	}

	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{respond: func(models.SynthesisRequest) (*models.GenerationResult, error) {
				return nil, cause
			}}

			_, err := NewSynthesizer(gen).Synthesize(context.Background(), models.SynthesisRequest{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrRateLimit))
			assert.True(t, apperrors.IsRateLimitError(err))
			assert.True(t, errors.Is(err, cause))
		})
	}
}

func TestSynthesizeServerErrorMentioningQuotaIsNotRateLimited(t *testing.T) {
	cause := &llm.ProviderError{
		Provider:   "anthropic",
		StatusCode: http.StatusInternalServerError,
		Message:    `{"type":"api_error","message":"quota backend timeout","request_id":"req_0142937"}`,
	}
	gen := &fakeGenerator{respond: func(models.SynthesisRequest) (*models.GenerationResult, error) {
		return nil, cause
	}}
	limiter := NewUsageLimiter()
	synth := NewSynthesizer(gen)

	_, err := Guard(context.Background(), limiter, func(ctx context.Context) (string, error) {
		return synth.Synthesize(ctx, models.SynthesisRequest{Concept: "x"})
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsSynthesisError(err))
	assert.False(t, apperrors.IsRateLimitError(err))
	assert.False(t, limiter.LimitReached())
}

func TestSynthesizeGenericFailureCarriesMessage(t *testing.T) {
	gen := &fakeGenerator{respond: func(models.SynthesisRequest) (*models.GenerationResult, error) {
		return nil, &llm.ProviderError{Provider: "anthropic", StatusCode: 500, Message: "overloaded"}
	}}

	_, err := NewSynthesizer(gen).Synthesize(context.Background(), models.SynthesisRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsSynthesisError(err))
	assert.False(t, errors.Is(err, apperrors.ErrRateLimit))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestSynthesizeEmptyTextIsError(t *testing.T) {
	gen := &fakeGenerator{respond: textResponse("   ")}
	_, err := NewSynthesizer(gen).Synthesize(context.Background(), models.SynthesisRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsSynthesisError(err))
}

func TestSynthesizeDoesNotRetry(t *testing.T) {
	gen := &fakeGenerator{respond: func(models.SynthesisRequest) (*models.GenerationResult, error) {
		return nil, errors.New("boom")
	}}
	_, _ = NewSynthesizer(gen).Synthesize(context.Background(), models.SynthesisRequest{})
	assert.Equal(t, 1, gen.callCount())
}
