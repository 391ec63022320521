// internal/services/prompt_builder.go
package services

import (
	"fmt"
	"strings"

	"github.com/Corphon/SceneForge/internal/models"
)

// PromptBuilder 将 SynthesisRequest 渲染为提示词
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// System 返回系统提示词
func (b *PromptBuilder) System(req models.SynthesisRequest) string {
	medium := mediumLabel(req.MediaType)
	if req.IsSceneRequest() {
		return fmt.Sprintf("You are a %s prompt engineer. Write one self-contained generation prompt for a single scene. "+
			"Keep every listed character and environment detail consistent with the anchors you are given. "+
			"Do not invent new recurring characters.", medium)
	}
	return fmt.Sprintf("You are a %s pre-production writer. Produce a reusable template for the concept, "+
		"followed by structured anchor blocks so the cast and locations can be reused in later scenes.", medium)
}

// Build 渲染用户提示词
func (b *PromptBuilder) Build(req models.SynthesisRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Concept: %s\n", strings.TrimSpace(req.Concept))
	if req.Duration > 0 && mediaHasDuration(req.MediaType) {
		fmt.Fprintf(&sb, "Duration: %d seconds\n", req.Duration)
	}
	if style := strings.TrimSpace(req.VideoStyle); style != "" {
		fmt.Fprintf(&sb, "Style: %s\n", style)
	}
	fmt.Fprintf(&sb, "Medium: %s\n", mediumLabel(req.MediaType))

	writeCharacters(&sb, req.Characters)
	writeEnvironments(&sb, req.Environments)
	writeBrands(&sb, req.Brands)

	if req.IsSceneRequest() {
		sb.WriteString("\n## Scene\n")
		if t := strings.TrimSpace(req.SceneTitle); t != "" {
			fmt.Fprintf(&sb, "Title: %s\n", t)
		}
		if d := strings.TrimSpace(req.SceneDescription); d != "" {
			fmt.Fprintf(&sb, "What happens: %s\n", d)
		}
		if st := strings.TrimSpace(req.StyleTemplate); st != "" {
			fmt.Fprintf(&sb, "Visual style template: %s\n", st)
		}
		sb.WriteString("\nWrite the final prompt for this scene only. Return plain text without preamble.\n")
		return sb.String()
	}

	sb.WriteString("\n## Output format\n")
	sb.WriteString("First write the template: a short synopsis, tone, pacing and camera or layout notes.\n")
	sb.WriteString("Then list every recurring character as:\n")
	sb.WriteString("**Name**: ...\n**Look**: ...\n**Demeanor**: ...\n**Role**: ...\n")
	sb.WriteString("Then list every recurring environment as:\n")
	sb.WriteString("**Name**: ...\n**Setting**: ...\n**Lighting**: ...\n**Audio**: ...\n**Props**: ...\n")
	sb.WriteString("Reuse the names of the anchors above when they appear.\n")
	return sb.String()
}

func writeCharacters(sb *strings.Builder, characters []models.CharacterSummary) {
	if len(characters) == 0 {
		return
	}
	sb.WriteString("\n## Characters\n")
	for _, c := range characters {
		fmt.Fprintf(sb, "**Name**: %s\n", c.Name)
		writeField(sb, "Look", c.Look)
		writeField(sb, "Demeanor", c.Demeanor)
		writeField(sb, "Role", c.Role)
		sb.WriteString("\n")
	}
}

func writeEnvironments(sb *strings.Builder, environments []models.EnvironmentSummary) {
	if len(environments) == 0 {
		return
	}
	sb.WriteString("\n## Environments\n")
	for _, e := range environments {
		fmt.Fprintf(sb, "**Name**: %s\n", e.Name)
		writeField(sb, "Setting", e.Setting)
		writeField(sb, "Lighting", e.Lighting)
		writeField(sb, "Audio", e.Audio)
		writeField(sb, "Props", e.Props)
		sb.WriteString("\n")
	}
}

func writeBrands(sb *strings.Builder, brands []models.BrandSummary) {
	if len(brands) == 0 {
		return
	}
	sb.WriteString("\n## Brand guidelines\n")
	for _, b := range brands {
		fmt.Fprintf(sb, "- %s: %s\n", b.Name, strings.Join(b.Tokens, "; "))
	}
}

func writeField(sb *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(sb, "**%s**: %s\n", label, value)
	}
}

func mediumLabel(m models.MediaType) string {
	switch m {
	case models.MediaImage:
		return "still image"
	case models.MediaInfographic:
		return "infographic"
	default:
		return "video"
	}
}

func mediaHasDuration(m models.MediaType) bool {
	return m == "" || m == models.MediaVideo
}
