// internal/services/synthesizer.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/llm"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/utils"
)

// Synthesizer 将结构化请求交给生成协作者，并对失败进行分类。不做重试。
type Synthesizer struct {
	generator Generator
	metrics   *utils.MetricsCollector
}

func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		metrics:   utils.GetMetricsCollector(),
	}
}

// Synthesize returns the collaborator's text unmodified. Quota exhaustion
// becomes a rate-limit AppError; any other failure a synthesis AppError.
func (s *Synthesizer) Synthesize(ctx context.Context, req models.SynthesisRequest) (string, error) {
	started := time.Now()
	s.metrics.IncrementCounter(utils.MetricSynthesisCalls)
	defer s.metrics.ObserveDuration(utils.MetricSynthesisLatency, started)

	result, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", s.classify(err, req)
	}

	if result == nil || strings.TrimSpace(result.Text) == "" {
		s.metrics.IncrementCounter(utils.MetricSynthesisFailed)
		return "", errors.NewSynthesisError("生成服务返回了空内容", nil)
	}

	utils.GetLogger().Debug("synthesis completed", map[string]interface{}{
		"scene":       req.IsSceneRequest(),
		"provider":    result.ProviderName,
		"tokens_used": result.TokensUsed,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return result.Text, nil
}

func (s *Synthesizer) classify(err error, req models.SynthesisRequest) error {
	if errors.IsRateLimitError(err) || llm.IsRateLimited(err) {
		s.metrics.IncrementCounter(utils.MetricSynthesisRateLimited)
		utils.GetLogger().Warn("generation quota exhausted", map[string]interface{}{
			"scene": req.IsSceneRequest(),
			"error": err,
		})
		if errors.IsRateLimitError(err) {
			return err
		}
		return errors.NewRateLimitError("生成配额已用尽", err)
	}

	s.metrics.IncrementCounter(utils.MetricSynthesisFailed)
	utils.GetLogger().Error("synthesis failed", map[string]interface{}{
		"scene": req.IsSceneRequest(),
		"error": err,
	})
	return errors.NewSynthesisError("生成失败", err)
}

// summaries builds the request-side anchor shapes.
func characterSummaries(characters []*models.Character) []models.CharacterSummary {
	return models.SummarizeCharacters(characters)
}

func environmentSummaries(environments []*models.Environment) []models.EnvironmentSummary {
	out := make([]models.EnvironmentSummary, 0, len(environments))
	for _, e := range environments {
		if e != nil {
			out = append(out, e.Summarize())
		}
	}
	return out
}

func brandSummaries(brands []*models.BrandAnchor) []models.BrandSummary {
	out := make([]models.BrandSummary, 0, len(brands))
	for _, b := range brands {
		if b != nil {
			out = append(out, b.Summarize())
		}
	}
	return out
}
