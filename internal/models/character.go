// internal/models/character.go
package models

import (
	"strings"
	"time"
)

// Character 角色锚点：可在多个场景之间复用的人物描述
type Character struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Look             string    `json:"look"`
	Demeanor         string    `json:"demeanor"`
	Role             string    `json:"role"`
	EnhancedLook     string    `json:"enhanced_look,omitempty"`
	EnhancedDemeanor string    `json:"enhanced_demeanor,omitempty"`
	EnhancedRole     string    `json:"enhanced_role,omitempty"`
	SourceTemplate   string    `json:"source_template,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CharacterSummary is the shape sent to the generation collaborator.
type CharacterSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Look     string `json:"look"`
	Demeanor string `json:"demeanor"`
	Role     string `json:"role"`
}

func (c *Character) Kind() AnchorKind         { return KindCharacter }
func (c *Character) GetID() string            { return c.ID }
func (c *Character) SetID(id string)          { c.ID = id }
func (c *Character) GetName() string          { return c.Name }
func (c *Character) GetCreatedAt() time.Time  { return c.CreatedAt }
func (c *Character) SetCreatedAt(t time.Time) { c.CreatedAt = t }

// Summarize resolves enhanced fields over raw ones.
func (c *Character) Summarize() CharacterSummary {
	return CharacterSummary{
		ID:       c.ID,
		Name:     strings.TrimSpace(c.Name),
		Look:     preferEnhanced(c.EnhancedLook, c.Look),
		Demeanor: preferEnhanced(c.EnhancedDemeanor, c.Demeanor),
		Role:     preferEnhanced(c.EnhancedRole, c.Role),
	}
}

// SummarizeCharacters 批量生成角色摘要
func SummarizeCharacters(characters []*Character) []CharacterSummary {
	summaries := make([]CharacterSummary, 0, len(characters))
	for _, c := range characters {
		if c == nil {
			continue
		}
		summaries = append(summaries, c.Summarize())
	}
	return summaries
}

func preferEnhanced(enhanced, raw string) string {
	if v := strings.TrimSpace(enhanced); v != "" {
		return v
	}
	return strings.TrimSpace(raw)
}
