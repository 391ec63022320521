// internal/llm/providers/offline/offline.go
package offline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/SceneForge/internal/llm"
)

func init() {
	llm.Register("offline", func() llm.Provider { return &Provider{} })
}

// Provider 离线提供者：不访问网络，根据提示词拼出确定性的结果。
// Used for local demos and tests when no API key is configured.
type Provider struct{}

func (p *Provider) Initialize(map[string]string) error { return nil }

func (p *Provider) GetName() string { return "offline" }

func (p *Provider) GetSupportedModels() []string { return []string{"offline-template"} }

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields := promptFields(req.Prompt)
	var sb strings.Builder

	if strings.Contains(req.Prompt, "\n## Scene\n") {
		fmt.Fprintf(&sb, "%s. ", firstNonEmpty(fields["title"], "Untitled scene"))
		if what := fields["what happens"]; what != "" {
			fmt.Fprintf(&sb, "%s. ", what)
		}
		fmt.Fprintf(&sb, "Concept: %s.", fields["concept"])
		if style := fields["visual style template"]; style != "" {
			fmt.Fprintf(&sb, " Style: %s.", style)
		}
	} else {
		fmt.Fprintf(&sb, "# Template\n\nSynopsis: %s\n", fields["concept"])
		if d := fields["duration"]; d != "" {
			fmt.Fprintf(&sb, "Runtime: %s\n", d)
		}
		sb.WriteString("\n## Characters\n\n")
		sb.WriteString("**Name**: Lead\n**Look**: Plain everyday clothes\n**Demeanor**: Earnest\n**Role**: Protagonist\n")
	}

	text := sb.String()
	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: "stop",
		TokensUsed:   len(strings.Fields(req.Prompt)) + len(strings.Fields(text)),
		ModelName:    "offline-template",
		ProviderName: p.GetName(),
	}, nil
}

// promptFields reads "Key: value" lines from the rendered prompt.
func promptFields(prompt string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "**") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := out[key]; !seen {
			out[key] = strings.TrimSpace(value)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
