// cmd/scenectl/generate.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/services"
)

type generateOptions struct {
	concept      string
	duration     int
	videoStyle   string
	mediaType    string
	characterIDs []string
	envIDs       []string
	scene        string
	timeout      time.Duration
}

func newGenerateCmd(opts *cliOptions) *cobra.Command {
	g := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run concept → template → approve → scene in one go",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(g.concept) == "" {
				return fmt.Errorf("--concept must not be blank")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			svc, err := opts.build()
			if err != nil {
				return err
			}
			defer svc.Close()

			if ready, state := svc.Generation.GetProviderStatus(); !ready {
				return fmt.Errorf("LLM provider %q not ready: %s", svc.Generation.ProviderName(), state)
			}
			return runGenerate(ctx, cmd.OutOrStdout(), svc.Projects, g)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&g.concept, "concept", "", "one-line concept for the piece")
	flags.IntVar(&g.duration, "duration", 0, "target duration in seconds")
	flags.StringVar(&g.videoStyle, "style", "", "video style")
	flags.StringVar(&g.mediaType, "media-type", "", "video or image")
	flags.StringSliceVar(&g.characterIDs, "character", nil, "library character id (repeatable)")
	flags.StringSliceVar(&g.envIDs, "environment", nil, "library environment id (repeatable)")
	flags.StringVar(&g.scene, "scene", "", "description of the scene to synthesise")
	flags.DurationVar(&g.timeout, "timeout", 3*time.Minute, "overall deadline")
	_ = cmd.MarkFlagRequired("concept")
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, projects *services.ProjectService, g *generateOptions) error {
	in := services.SetupInput{
		Concept:        &g.concept,
		CharacterIDs:   g.characterIDs,
		EnvironmentIDs: g.envIDs,
	}
	if g.duration > 0 {
		in.Duration = &g.duration
	}
	if g.videoStyle != "" {
		in.VideoStyle = &g.videoStyle
	}
	if g.mediaType != "" {
		in.MediaType = &g.mediaType
	}

	step := func(name string) {
		fmt.Fprintf(out, "%s %s\n", headingColor.Sprint("▶"), name)
	}

	step("setup")
	wc, err := projects.CreateProject(in)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  project %s, %d character(s), %d environment(s)\n", wc.ProjectID, len(wc.Characters), len(wc.Environments))

	step("template")
	wc, report, err := projects.GenerateTemplate(ctx, wc.ProjectID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, indent(wc.Template))
	fmt.Fprintf(out, "  %s saved %d character(s), %d environment(s); %d duplicate(s)\n",
		okColor.Sprint("✓"), len(report.SavedCharacters), len(report.SavedEnvironments), report.Duplicates)

	step("approve")
	if wc, err = projects.Approve(wc.ProjectID); err != nil {
		return err
	}

	step("scene")
	wc, sceneID, err := projects.AddScene(wc.ProjectID)
	if err != nil {
		return err
	}
	if g.scene != "" {
		if wc, err = projects.UpdateScene(wc.ProjectID, sceneID, services.SceneFieldDescription, g.scene); err != nil {
			return err
		}
	}
	if wc, err = projects.GenerateScene(ctx, wc.ProjectID, sceneID); err != nil {
		return err
	}

	scene := wc.Scenes[wc.SceneIndex(sceneID)]
	fmt.Fprintln(out, indent(scene.Content))
	fmt.Fprintf(out, "%s project %s at stage %s\n", okColor.Sprint("✓"), wc.ProjectID, stageLabel(wc.Stage))
	return nil
}

func stageLabel(stage models.Stage) string {
	return warnColor.Sprint(string(stage))
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "  " + dimColor.Sprint("│ ") + line
	}
	return strings.Join(lines, "\n")
}
