// internal/models/synthesis.go
package models

// SynthesisRequest 发送给生成服务的结构化请求
type SynthesisRequest struct {
	Concept          string               `json:"concept"`
	Duration         int                  `json:"duration"`
	VideoStyle       string               `json:"video_style"`
	MediaType        MediaType            `json:"media_type,omitempty"`
	Characters       []CharacterSummary   `json:"characters"`
	Environments     []EnvironmentSummary `json:"environments"`
	Brands           []BrandSummary       `json:"brands,omitempty"`
	SceneTitle       string               `json:"scene_title,omitempty"`
	SceneDescription string               `json:"scene_description,omitempty"`
	StyleTemplate    string               `json:"style_template,omitempty"`
}

// IsSceneRequest reports whether the request targets a single scene rather
// than the project-level template.
func (r SynthesisRequest) IsSceneRequest() bool {
	return r.SceneTitle != "" || r.SceneDescription != ""
}

// GenerationResult 生成服务返回的原始文本
type GenerationResult struct {
	Text         string `json:"text"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
}
