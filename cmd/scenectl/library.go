// cmd/scenectl/library.go
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/SceneForge/internal/models"
)

func newLibraryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect and edit the anchor libraries",
	}

	cmd.AddCommand(
		newLibraryListCmd(opts),
		newAddCharacterCmd(opts),
		newAddEnvironmentCmd(opts),
		newLibraryRemoveCmd(opts),
	)
	return cmd
}

func newLibraryListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [kind...]",
		Short: "List anchors (all kinds when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := models.AllAnchorKinds
			if len(args) > 0 {
				kinds = make([]models.AnchorKind, 0, len(args))
				for _, arg := range args {
					kind, ok := models.ParseAnchorKind(arg)
					if !ok {
						return fmt.Errorf("unknown anchor kind %q", arg)
					}
					kinds = append(kinds, kind)
				}
			}

			svc, err := opts.build()
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			for _, kind := range kinds {
				printAnchors(out, kind, svc.Libraries.List(kind))
			}
			return nil
		},
	}
}

func printAnchors(out io.Writer, kind models.AnchorKind, anchors []models.Anchor) {
	fmt.Fprintf(out, "%s (%d)\n", headingColor.Sprint(strings.ToUpper(string(kind))), len(anchors))
	if len(anchors) == 0 {
		fmt.Fprintln(out, dimColor.Sprint("  (empty)"))
		return
	}
	for _, a := range anchors {
		fmt.Fprintf(out, "  %-24s %s\n", a.GetName(), dimColor.Sprint(a.GetID()))
		switch v := a.(type) {
		case *models.Character:
			s := v.Summarize()
			fmt.Fprintf(out, "    look: %s | demeanor: %s | role: %s\n", orDash(s.Look), orDash(s.Demeanor), orDash(s.Role))
		case *models.Environment:
			s := v.Summarize()
			fmt.Fprintf(out, "    setting: %s | lighting: %s\n", orDash(s.Setting), orDash(s.Lighting))
		}
	}
}

func newAddCharacterCmd(opts *cliOptions) *cobra.Command {
	c := &models.Character{}
	cmd := &cobra.Command{
		Use:   "add-character",
		Short: "Save a character anchor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAnchor(cmd, opts, c)
		},
	}
	cmd.Flags().StringVar(&c.Name, "name", "", "character name")
	cmd.Flags().StringVar(&c.Look, "look", "", "visual description")
	cmd.Flags().StringVar(&c.Demeanor, "demeanor", "", "demeanor")
	cmd.Flags().StringVar(&c.Role, "role", "", "role in the piece")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAddEnvironmentCmd(opts *cliOptions) *cobra.Command {
	e := &models.Environment{}
	cmd := &cobra.Command{
		Use:   "add-environment",
		Short: "Save an environment anchor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAnchor(cmd, opts, e)
		},
	}
	cmd.Flags().StringVar(&e.Name, "name", "", "environment name")
	cmd.Flags().StringVar(&e.Setting, "setting", "", "location")
	cmd.Flags().StringVar(&e.Lighting, "lighting", "", "lighting")
	cmd.Flags().StringVar(&e.Audio, "audio", "", "ambient audio")
	cmd.Flags().StringVar(&e.Props, "props", "", "props")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func saveAnchor(cmd *cobra.Command, opts *cliOptions, anchor models.Anchor) error {
	if strings.TrimSpace(anchor.GetName()) == "" {
		return fmt.Errorf("--name must not be blank")
	}

	svc, err := opts.build()
	if err != nil {
		return err
	}
	defer svc.Close()

	saved := svc.Libraries.Save(anchor)
	if err := svc.Libraries.LastError(anchor.Kind()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s saved in memory but not persisted: %v\n", warnColor.Sprint("!"), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %q (%s)\n", okColor.Sprint("✓"), anchor.Kind(), saved.GetName(), saved.GetID())
	return nil
}

func newLibraryRemoveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <id>",
		Short: "Remove an anchor by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := models.ParseAnchorKind(args[0])
			if !ok {
				return fmt.Errorf("unknown anchor kind %q", args[0])
			}

			svc, err := opts.build()
			if err != nil {
				return err
			}
			defer svc.Close()

			found := false
			for _, a := range svc.Libraries.List(kind) {
				if a.GetID() == args[1] {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%s %s not found", kind, args[1])
			}

			svc.Libraries.Remove(kind, args[1])
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s %s\n", okColor.Sprint("✓"), kind, args[1])
			return nil
		},
	}
}
