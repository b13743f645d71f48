package cli

import (
	"bufio"
	"fmt"

	"github.com/harun/twinself/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	snapshotsKeep int
	snapshotsYes  bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage vector store snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots with their size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			out := cmd.OutOrStdout()
			infos := a.service.Snapshots().Infos()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No snapshots found.")
				return nil
			}
			var total int64
			for _, info := range infos {
				total += info.SizeBytes
				prompt := ""
				if info.HasPrompt {
					prompt = "  +prompt"
				}
				fmt.Fprintf(out, "  %s: %s%s\n", info.VersionID, formatBytes(info.SizeBytes), prompt)
			}
			fmt.Fprintf(out, "Total: %d snapshots, %s\n", len(infos), formatBytes(total))
			return nil
		})
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <version-id>",
	Short: "Delete one snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := tracing.WithActor(cmd.Context(), "cli")
			if !a.service.DeleteSnapshot(ctx, args[0]) {
				return fmt.Errorf("snapshot %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", args[0])
			return nil
		})
	},
}

var snapshotsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old snapshots, keeping the newest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			out := cmd.OutOrStdout()
			keep := snapshotsKeep
			if !cmd.Flags().Changed("keep") {
				keep = a.cfg.Snapshots.KeepLast
			}
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			existing := len(a.service.Snapshots().List())
			if existing <= keep {
				fmt.Fprintf(out, "Only %d snapshots exist. Nothing to clean.\n", existing)
				return nil
			}
			if !snapshotsYes {
				fmt.Fprintf(out, "This will delete %d snapshots.\n", existing-keep)
				if !confirm(bufio.NewReader(cmd.InOrStdin()), out, "Continue?") {
					fmt.Fprintln(out, "Cleanup cancelled.")
					return nil
				}
			}

			ctx := tracing.WithActor(cmd.Context(), "cli")
			deleted := a.service.CleanupSnapshots(ctx, keep)
			fmt.Fprintf(out, "Deleted %d old snapshots\n", deleted)
			return nil
		})
	},
}

func init() {
	snapshotsCleanupCmd.Flags().IntVar(&snapshotsKeep, "keep", 5, "number of snapshots to keep (default from config)")
	snapshotsCleanupCmd.Flags().BoolVarP(&snapshotsYes, "yes", "y", false, "skip confirmation")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsDeleteCmd, snapshotsCleanupCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func formatBytes(n int64) string {
	const unit = 1024
	switch {
	case n >= unit*unit:
		return fmt.Sprintf("%.2f MB", float64(n)/(unit*unit))
	case n >= unit:
		return fmt.Sprintf("%.2f KB", float64(n)/unit)
	}
	return fmt.Sprintf("%d B", n)
}
