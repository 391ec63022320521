// internal/models/environment.go
package models

import (
	"strings"
	"time"
)

// Environment 环境锚点：地点、光线、声音与道具
type Environment struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Setting          string    `json:"setting"`
	Lighting         string    `json:"lighting"`
	Audio            string    `json:"audio"`
	Props            string    `json:"props"`
	EnhancedSetting  string    `json:"enhanced_setting,omitempty"`
	EnhancedLighting string    `json:"enhanced_lighting,omitempty"`
	EnhancedAudio    string    `json:"enhanced_audio,omitempty"`
	EnhancedProps    string    `json:"enhanced_props,omitempty"`
	SourceTemplate   string    `json:"source_template,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// EnvironmentSummary is the environment shape sent to the generation collaborator.
type EnvironmentSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Setting  string `json:"setting"`
	Lighting string `json:"lighting"`
	Audio    string `json:"audio"`
	Props    string `json:"props"`
}

func (e *Environment) Kind() AnchorKind         { return KindEnvironment }
func (e *Environment) GetID() string            { return e.ID }
func (e *Environment) SetID(id string)          { e.ID = id }
func (e *Environment) GetName() string          { return e.Name }
func (e *Environment) GetCreatedAt() time.Time  { return e.CreatedAt }
func (e *Environment) SetCreatedAt(t time.Time) { e.CreatedAt = t }

// Summarize resolves enhanced fields over raw ones.
func (e *Environment) Summarize() EnvironmentSummary {
	return EnvironmentSummary{
		ID:       e.ID,
		Name:     strings.TrimSpace(e.Name),
		Setting:  preferEnhanced(e.EnhancedSetting, e.Setting),
		Lighting: preferEnhanced(e.EnhancedLighting, e.Lighting),
		Audio:    preferEnhanced(e.EnhancedAudio, e.Audio),
		Props:    preferEnhanced(e.EnhancedProps, e.Props),
	}
}

// CustomEnvironmentSummary wraps free text typed for a single scene.
func CustomEnvironmentSummary(text string) EnvironmentSummary {
	return EnvironmentSummary{
		ID:      "custom",
		Name:    "Custom environment",
		Setting: strings.TrimSpace(text),
	}
}
