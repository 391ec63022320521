// internal/models/anchor.go
package models

import (
	"strings"
	"time"
)

// AnchorKind 锚点类型
type AnchorKind string

const (
	KindCharacter   AnchorKind = "characters"
	KindEnvironment AnchorKind = "environments"
	KindStyle       AnchorKind = "styles"
	KindBrand       AnchorKind = "brands"
)

// AllAnchorKinds lists every library kind in display order.
var AllAnchorKinds = []AnchorKind{KindCharacter, KindEnvironment, KindStyle, KindBrand}

// ParseAnchorKind accepts both singular and plural spellings.
func ParseAnchorKind(s string) (AnchorKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "characters":
		return KindCharacter, true
	case "environment", "environments":
		return KindEnvironment, true
	case "style", "styles":
		return KindStyle, true
	case "brand", "brands":
		return KindBrand, true
	}
	return "", false
}

// Anchor is implemented by every reusable building block kept in a library.
// Implementations use pointer receivers so libraries can assign ids in place.
type Anchor interface {
	Kind() AnchorKind
	GetID() string
	SetID(id string)
	GetName() string
	GetCreatedAt() time.Time
	SetCreatedAt(t time.Time)
}

// NameKey normalises an anchor name for case-insensitive comparison.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StyleAnchor 视觉风格锚点
type StyleAnchor struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Template         string    `json:"template"`
	EnhancedTemplate string    `json:"enhanced_template,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *StyleAnchor) Kind() AnchorKind         { return KindStyle }
func (s *StyleAnchor) GetID() string            { return s.ID }
func (s *StyleAnchor) SetID(id string)          { s.ID = id }
func (s *StyleAnchor) GetName() string          { return s.Name }
func (s *StyleAnchor) GetCreatedAt() time.Time  { return s.CreatedAt }
func (s *StyleAnchor) SetCreatedAt(t time.Time) { s.CreatedAt = t }

// ResolvedTemplate returns the template text injected into a scene request.
func (s *StyleAnchor) ResolvedTemplate() string {
	if t := preferEnhanced(s.EnhancedTemplate, s.Template); t != "" {
		return t
	}
	return strings.TrimSpace(s.Description)
}

// BrandAnchor 品牌锚点，携带一组品牌词元（色彩、口号、标识规范等）
type BrandAnchor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tokens      []string  `json:"tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// BrandSummary is the brand shape sent to the generation collaborator.
type BrandSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

func (b *BrandAnchor) Kind() AnchorKind         { return KindBrand }
func (b *BrandAnchor) GetID() string            { return b.ID }
func (b *BrandAnchor) SetID(id string)          { b.ID = id }
func (b *BrandAnchor) GetName() string          { return b.Name }
func (b *BrandAnchor) GetCreatedAt() time.Time  { return b.CreatedAt }
func (b *BrandAnchor) SetCreatedAt(t time.Time) { b.CreatedAt = t }

// Summarize 生成品牌摘要
func (b *BrandAnchor) Summarize() BrandSummary {
	tokens := make([]string, 0, len(b.Tokens))
	for _, t := range b.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return BrandSummary{ID: b.ID, Name: strings.TrimSpace(b.Name), Tokens: tokens}
}
