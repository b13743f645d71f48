package cli

import (
	"fmt"
	"time"

	"github.com/harun/twinself/pkg/prompt"
	"github.com/spf13/cobra"
)

var (
	promptDiffFiles    bool
	promptRestoreForce bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Inspect system prompts",
}

var promptShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print the active prompt, or a named prompt file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			var (
				p   prompt.Prompt
				err error
			)
			if len(args) == 1 {
				p, err = a.service.Prompts().Get(args[0])
			} else {
				p, err = a.service.Prompts().Active()
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.VersionID != "" {
				fmt.Fprintf(out, "# %s (version %s)\n", p.Name, p.VersionID)
			} else {
				fmt.Fprintf(out, "# %s\n", p.Name)
			}
			fmt.Fprintln(out, p.Content)
			return nil
		})
	},
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			infos, err := a.service.Prompts().List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintf(out, "No prompts in %s\n", a.service.Prompts().Dir())
				return nil
			}
			active := ""
			if p, err := a.service.Prompts().Active(); err == nil {
				active = p.Name
			}
			for _, info := range infos {
				mark := " "
				if info.Name == active {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-28s %8s  %s  %s\n", mark, info.Name, formatBytes(info.Size),
					info.Modified.Local().Format(time.DateTime), info.Preview)
			}
			return nil
		})
	},
}

var promptDiffCmd = &cobra.Command{
	Use:   "diff <from> <to>",
	Short: "Diff the prompts captured by two versions",
	Long: `Diff the prompts captured in the snapshots of two versions. With --files
the arguments name prompt files in the prompts directory instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			var (
				d   prompt.Diff
				err error
			)
			if promptDiffFiles {
				d, err = a.service.Prompts().DiffFiles(args[0], args[1])
			} else {
				d, err = a.service.Prompts().DiffVersions(args[0], args[1])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if d.Empty() {
				fmt.Fprintln(out, "Prompts are identical")
				return nil
			}
			fmt.Fprint(out, d.Text)
			fmt.Fprintf(out, "%d added, %d removed\n", d.Added, d.Removed)
			return nil
		})
	},
}

var promptRestoreCmd = &cobra.Command{
	Use:   "restore <version-id>",
	Short: "Write a version's captured prompt back to its prompt file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			path, err := a.service.Prompts().RestoreFromVersion(args[0], promptRestoreForce)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", path)
			return nil
		})
	},
}

func init() {
	promptDiffCmd.Flags().BoolVar(&promptDiffFiles, "files", false, "compare prompt files instead of versions")
	promptRestoreCmd.Flags().BoolVar(&promptRestoreForce, "force", false, "overwrite an existing prompt file")
	promptCmd.AddCommand(promptShowCmd, promptListCmd, promptDiffCmd, promptRestoreCmd)
	rootCmd.AddCommand(promptCmd)
}
