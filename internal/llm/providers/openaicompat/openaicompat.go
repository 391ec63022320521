// internal/llm/providers/openaicompat/openaicompat.go
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Corphon/SceneForge/internal/llm"
)

// flavor 描述一个 OpenAI 兼容的 /chat/completions 服务
type flavor struct {
	key          string
	displayName  string
	baseURL      string
	defaultModel string
	models       []string
	headers      map[string]string
}

var flavors = []flavor{
	{
		key:          "openrouter",
		displayName:  "OpenRouter",
		baseURL:      "https://openrouter.ai/api/v1",
		defaultModel: "google/gemma-3-27b-it:free",
		models: []string{
			"google/gemma-3-27b-it:free",
			"qwen/qwen3-235b-a22b:free",
			"mistralai/devstral-2512:free",
		},
		headers: map[string]string{"X-Title": "SceneForge"},
	},
	{
		key:          "grok",
		displayName:  "xAI Grok",
		baseURL:      "https://api.x.ai/v1",
		defaultModel: "grok-3",
		models:       []string{"grok-4", "grok-4-fast", "grok-3", "grok-3-mini"},
	},
	{
		key:          "glm",
		displayName:  "Zhipu GLM",
		baseURL:      "https://open.bigmodel.cn/api/paas/v4",
		defaultModel: "glm-4-flash",
		models:       []string{"glm-4-plus", "glm-4-air", "glm-4-flash"},
	},
	{
		key:          "qwen",
		displayName:  "Qwen",
		baseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		defaultModel: "qwen-plus",
		models:       []string{"qwen-max", "qwen-plus", "qwen-turbo"},
	},
	{
		key:          "githubmodels",
		displayName:  "GitHub Models",
		baseURL:      "https://models.inference.ai.azure.com",
		defaultModel: "gpt-4o",
		models:       []string{"gpt-4o", "o3-mini", "Phi-4"},
	},
}

func init() {
	for _, f := range flavors {
		f := f
		llm.Register(f.key, func() llm.Provider {
			return &Provider{flavor: f, baseURL: f.baseURL}
		})
	}
}

// Provider 通用的 OpenAI 兼容提供者
type Provider struct {
	flavor       flavor
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	customModels []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return fmt.Errorf("%s api密钥未提供", p.flavor.key)
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 2 * time.Minute}

	p.defaultModel = p.flavor.defaultModel
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = baseURL
	}

	if customModels := config["custom_models"]; customModels != "" {
		var models []string
		if err := json.Unmarshal([]byte(customModels), &models); err == nil && len(models) > 0 {
			p.customModels = models
		}
	}
	return nil
}

func (p *Provider) GetName() string {
	return p.flavor.displayName
}

func (p *Provider) GetSupportedModels() []string {
	if len(p.customModels) > 0 {
		return p.customModels
	}
	return p.flavor.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := []map[string]string{{"role": "user", "content": req.Prompt}}
	if req.SystemPrompt != "" {
		messages = append([]map[string]string{{"role": "system", "content": req.SystemPrompt}}, messages...)
	}

	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		requestBody["top_p"] = req.TopP
	}
	for k, v := range req.ExtraParams {
		requestBody[k] = v
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.flavor.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s 请求失败: %w", p.flavor.key, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &llm.ProviderError{
			Provider:   p.flavor.key,
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	var response struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("解析%s响应失败: %w", p.flavor.key, err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.New(p.flavor.displayName + "未返回任何结果")
	}

	modelName := response.Model
	if modelName == "" {
		modelName = model
	}
	return &llm.CompletionResponse{
		Text:         response.Choices[0].Message.Content,
		FinishReason: response.Choices[0].FinishReason,
		TokensUsed:   response.Usage.TotalTokens,
		PromptTokens: response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		ModelName:    modelName,
		ProviderName: p.GetName(),
	}, nil
}

// errorMessage 提取 {"error":{"message":..}}；部分服务的 error 是字符串
func errorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 {
		return string(body)
	}

	var detail struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	}
	if json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "" {
		return detail.Message
	}
	var s string
	if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
		return s
	}
	return string(body)
}
