// internal/models/workflow.go
package models

import "time"

// Stage 工作流阶段
type Stage string

const (
	StageSetup    Stage = "setup"
	StageTemplate Stage = "template"
	StageScenes   Stage = "scenes"
)

// MediaType 目标媒体类型
type MediaType string

const (
	MediaVideo       MediaType = "video"
	MediaImage       MediaType = "image"
	MediaInfographic MediaType = "infographic"
)

// ParseMediaType falls back to video for unknown values.
func ParseMediaType(s string) MediaType {
	switch MediaType(s) {
	case MediaImage, MediaInfographic:
		return MediaType(s)
	default:
		return MediaVideo
	}
}

// WorkflowContext 是一个项目在 Setup → Template → Scenes 流程中的完整状态。
// Transitions take a context by value and return a new one.
type WorkflowContext struct {
	ProjectID    string         `json:"project_id"`
	Stage        Stage          `json:"stage"`
	MediaType    MediaType      `json:"media_type"`
	Concept      string         `json:"concept"`
	Duration     int            `json:"duration"`
	VideoStyle   string         `json:"video_style"`
	Characters   []*Character   `json:"characters"`
	Environments []*Environment `json:"environments"`
	Brands       []*BrandAnchor `json:"brands,omitempty"`
	Template     string         `json:"template"`
	Scenes       []Scene        `json:"scenes"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone deep-copies the context so transitions never share mutable state
// with their input.
func (w WorkflowContext) Clone() WorkflowContext {
	out := w
	out.Characters = make([]*Character, 0, len(w.Characters))
	for _, c := range w.Characters {
		if c == nil {
			continue
		}
		cp := *c
		out.Characters = append(out.Characters, &cp)
	}
	out.Environments = make([]*Environment, 0, len(w.Environments))
	for _, e := range w.Environments {
		if e == nil {
			continue
		}
		cp := *e
		out.Environments = append(out.Environments, &cp)
	}
	if w.Brands != nil {
		out.Brands = make([]*BrandAnchor, 0, len(w.Brands))
		for _, b := range w.Brands {
			if b == nil {
				continue
			}
			cp := *b
			cp.Tokens = append([]string(nil), b.Tokens...)
			out.Brands = append(out.Brands, &cp)
		}
	}
	out.Scenes = make([]Scene, len(w.Scenes))
	for i, s := range w.Scenes {
		out.Scenes[i] = s.Clone()
	}
	return out
}

// SceneIndex returns the position of a scene, or -1.
func (w WorkflowContext) SceneIndex(sceneID string) int {
	for i := range w.Scenes {
		if w.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

// ProjectMetadata 用于项目列表
type ProjectMetadata struct {
	ProjectID  string    `json:"project_id"`
	Stage      Stage     `json:"stage"`
	Concept    string    `json:"concept"`
	SceneCount int       `json:"scene_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}
