// cmd/scenectl/parse.go
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/parser"
)

func newParseCmd(opts *cliOptions) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Extract character and environment anchors from a template",
		Long: `Parse a markdown template and print the anchors found in it.
With --save, anchors whose names are not already in the library are stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			ex := parser.Extract(text)
			out := cmd.OutOrStdout()
			printAnchors(out, models.KindCharacter, toAnchorList(ex.Characters))
			printAnchors(out, models.KindEnvironment, toAnchorList(ex.Environments))
			if ex.Skipped > 0 {
				fmt.Fprintf(out, "%s %d unnamed block(s) skipped\n", warnColor.Sprint("!"), ex.Skipped)
			}

			if !save || ex.Count() == 0 {
				return nil
			}

			svc, err := opts.build()
			if err != nil {
				return err
			}
			defer svc.Close()

			saved, existing := 0, 0
			for _, c := range ex.Characters {
				if _, created := svc.Libraries.Characters.SaveIfAbsentByName(c); created {
					saved++
				} else {
					existing++
				}
			}
			for _, e := range ex.Environments {
				if _, created := svc.Libraries.Environments.SaveIfAbsentByName(e); created {
					saved++
				} else {
					existing++
				}
			}

			fmt.Fprintf(out, "%s saved %d anchor(s), %d already in library\n", okColor.Sprint("✓"), saved, existing)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store extracted anchors in the library")
	return cmd
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func toAnchorList[A models.Anchor](items []A) []models.Anchor {
	out := make([]models.Anchor, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
