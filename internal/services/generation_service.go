// internal/services/generation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Corphon/SceneForge/internal/llm"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/utils"
)

var ErrLLMNotReady = errors.New("llm service not ready")

var providerDefaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"google":    "gemini-2.5-flash",
	"offline":   "offline-template",
}

const (
	templateTemperature = 0.8
	sceneTemperature    = 0.7
)

// Generator 外部生成协作者：接收结构化请求，返回原始文本
type Generator interface {
	Generate(ctx context.Context, req models.SynthesisRequest) (*models.GenerationResult, error)
}

// GenerationService 通过配置的 llm.Provider 完成生成请求
type GenerationService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	isReady            bool
	readyState         string
	activeDefaultModel string
	prompts            *PromptBuilder
}

// NewGenerationServiceFor 使用给定的提供者配置创建生成服务。配置缺失时返回未就绪的服务而不是错误。
func NewGenerationServiceFor(providerName string, llmConfig map[string]string) *GenerationService {
	service := createBaseGenerationService()
	if providerName == "" {
		service.readyState = "LLM provider not configured"
		return service
	}

	if err := service.UpdateProvider(providerName, llmConfig); err != nil {
		utils.GetLogger().Warn("generation provider not initialised", map[string]interface{}{
			"provider": providerName,
			"error":    err,
		})
	}
	return service
}

// NewGenerationServiceWithProvider wraps an already initialised provider.
func NewGenerationServiceWithProvider(name string, provider llm.Provider) *GenerationService {
	service := createBaseGenerationService()
	service.provider = provider
	service.providerName = name
	service.isReady = provider != nil
	service.readyState = "Ready"
	if provider == nil {
		service.readyState = "Provider missing"
	}
	return service
}

func createBaseGenerationService() *GenerationService {
	return &GenerationService{
		readyState: "Uninitialized",
		prompts:    NewPromptBuilder(),
	}
}

// IsReady 返回服务是否已就绪
func (s *GenerationService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *GenerationService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "生成服务实例未初始化"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady, s.readyState
}

// ProviderName 返回当前提供者名称
func (s *GenerationService) ProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 切换提供者；失败时服务进入未就绪状态
func (s *GenerationService) UpdateProvider(providerName string, cfg map[string]string) error {
	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = extractDefaultModel(cfg)
	s.isReady = true
	s.readyState = "Ready"
	return nil
}

// Generate 渲染提示词并调用提供者。返回的文本不做任何修改。
func (s *GenerationService) Generate(ctx context.Context, req models.SynthesisRequest) (*models.GenerationResult, error) {
	s.providerMutex.RLock()
	if !s.isReady || s.provider == nil {
		state := s.readyState
		s.providerMutex.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrLLMNotReady, state)
	}
	provider := s.provider
	providerName := s.providerName
	s.providerMutex.RUnlock()

	temperature := float32(templateTemperature)
	if req.IsSceneRequest() {
		temperature = sceneTemperature
	}

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       s.prompts.Build(req),
		SystemPrompt: s.prompts.System(req),
		Temperature:  temperature,
		Model:        s.resolveModel(""),
	})
	if err != nil {
		return nil, err
	}

	return &models.GenerationResult{
		Text:         resp.Text,
		ModelName:    resp.ModelName,
		ProviderName: providerName,
		TokensUsed:   resp.TokensUsed,
	}, nil
}

// resolveModel 解析需要使用的模型
func (s *GenerationService) resolveModel(requested string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}

	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.activeDefaultModel != "" {
		return s.activeDefaultModel
	}
	if m, ok := providerDefaultModels[strings.ToLower(s.providerName)]; ok {
		return m
	}
	return ""
}

func extractDefaultModel(cfg map[string]string) string {
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg["default_model"])
}
