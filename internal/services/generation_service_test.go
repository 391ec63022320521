package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneForge/internal/llm"
	_ "github.com/Corphon/SceneForge/internal/llm/providers/offline"
	"github.com/Corphon/SceneForge/internal/models"
)

type stubProvider struct {
	last llm.CompletionRequest
	resp *llm.CompletionResponse
	err  error
}

func (p *stubProvider) Initialize(map[string]string) error { return nil }
func (p *stubProvider) GetName() string                    { return "stub" }
func (p *stubProvider) GetSupportedModels() []string       { return []string{"stub-1"} }
func (p *stubProvider) CompleteText(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.last = req
	return p.resp, p.err
}

func TestGenerationServiceRendersAnchors(t *testing.T) {
	provider := &stubProvider{resp: &llm.CompletionResponse{Text: "ok", TokensUsed: 7}}
	svc := NewGenerationServiceWithProvider("stub", provider)

	req := models.SynthesisRequest{
		Concept:    "a barista serves the wrong drink",
		Duration:   10,
		VideoStyle: "sitcom",
		Characters: []models.CharacterSummary{{Name: "Mira", Look: "green apron"}},
		Environments: []models.EnvironmentSummary{
			models.CustomEnvironmentSummary("rainy street"),
		},
		Brands: []models.BrandSummary{{Name: "Acme", Tokens: []string{"navy", "orange"}}},
	}

	res, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, "stub", res.ProviderName)
	assert.Equal(t, 7, res.TokensUsed)

	prompt := provider.last.Prompt
	assert.Contains(t, prompt, "Concept: a barista serves the wrong drink")
	assert.Contains(t, prompt, "Duration: 10 seconds")
	assert.Contains(t, prompt, "**Name**: Mira")
	assert.Contains(t, prompt, "**Look**: green apron")
	assert.Contains(t, prompt, "**Setting**: rainy street")
	assert.Contains(t, prompt, "Acme: navy; orange")
	assert.Contains(t, prompt, "## Output format")
	assert.NotEmpty(t, provider.last.SystemPrompt)
}

func TestGenerationServiceScenePrompt(t *testing.T) {
	provider := &stubProvider{resp: &llm.CompletionResponse{Text: "ok"}}
	svc := NewGenerationServiceWithProvider("stub", provider)

	_, err := svc.Generate(context.Background(), models.SynthesisRequest{
		Concept:          "x",
		MediaType:        models.MediaImage,
		Duration:         10,
		SceneDescription: "apologizes awkwardly",
		StyleTemplate:    "film grain",
	})
	require.NoError(t, err)

	prompt := provider.last.Prompt
	assert.Contains(t, prompt, "What happens: apologizes awkwardly")
	assert.Contains(t, prompt, "Visual style template: film grain")
	assert.NotContains(t, prompt, "Duration:")
	assert.NotContains(t, prompt, "## Output format")
}

func TestGenerationServicePassesProviderErrors(t *testing.T) {
	cause := &llm.ProviderError{Provider: "stub", StatusCode: 429, Message: "slow down"}
	svc := NewGenerationServiceWithProvider("stub", &stubProvider{err: cause})

	_, err := svc.Generate(context.Background(), models.SynthesisRequest{Concept: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrRateLimited))
}

func TestGenerationServiceNotReady(t *testing.T) {
	svc := NewGenerationServiceWithProvider("none", nil)
	ready, _ := svc.GetProviderStatus()
	assert.False(t, ready)

	_, err := svc.Generate(context.Background(), models.SynthesisRequest{Concept: "x"})
	assert.True(t, errors.Is(err, ErrLLMNotReady))
}

func TestGenerationServiceUpdateProvider(t *testing.T) {
	svc := NewGenerationServiceWithProvider("none", nil)

	require.Error(t, svc.UpdateProvider("does-not-exist", nil))
	assert.False(t, svc.IsReady())

	require.NoError(t, svc.UpdateProvider("offline", map[string]string{}))
	assert.True(t, svc.IsReady())
	assert.Equal(t, "offline", svc.ProviderName())

	res, err := svc.Generate(context.Background(), models.SynthesisRequest{Concept: "a barista serves the wrong drink"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Text, "**Name**: Lead"))
}
