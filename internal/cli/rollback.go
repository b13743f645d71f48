package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/harun/twinself/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	rollbackMetadataOnly bool
	rollbackYes          bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <version-id>",
	Short: "Roll memory back to a recorded version",
	Long: `Make a recorded version active again. By default the vector store is
restored from the version's snapshot; --metadata-only only moves the active
version pointer. A running serve process must be restarted afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackMetadataOnly, "metadata-only", false, "only update the active version pointer, do not restore data")
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withApp(func(a *app) error {
		out := cmd.OutOrStdout()
		if _, ok := a.service.Registry().Get(id); !ok {
			return fmt.Errorf("version %s not found", id)
		}

		fmt.Fprintf(out, "Rolling back to version: %s\n", id)
		if rollbackMetadataOnly {
			fmt.Fprintln(out, "This will only update the active version pointer.")
		} else {
			fmt.Fprintln(out, "This will restore both data and version pointer.")
		}

		in := bufio.NewReader(cmd.InOrStdin())
		restoreData := !rollbackMetadataOnly
		if restoreData && !a.service.Snapshots().Exists(id) {
			fmt.Fprintf(out, "Warning: no snapshot found for %s\n", id)
			if !rollbackYes && !confirm(in, out, "Continue with metadata-only rollback?") {
				fmt.Fprintln(out, "Rollback cancelled.")
				return nil
			}
			fmt.Fprintln(out, "Only the active version pointer will be updated.")
			restoreData = false
		}
		if !rollbackYes && !confirm(in, out, "Continue?") {
			fmt.Fprintln(out, "Rollback cancelled.")
			return nil
		}

		ctx := tracing.NewCycleContext(cmd.Context(), "cli")
		res := a.service.Rollback(ctx, id, restoreData)
		switch res.Outcome() {
		case "success":
			fmt.Fprintln(out, "Rollback successful.")
			if res.Backup != "" {
				fmt.Fprintf(out, "Previous data kept at %s\n", res.Backup)
			}
			fmt.Fprintln(out, "Restart any running serve process to use the rolled-back version.")
			return nil
		case "partial":
			fmt.Fprintln(out, "Rollback partially applied.")
		}
		return fmt.Errorf("rollback failed: %s", res.Error())
	})
}

// confirm asks a yes/no question. Anything but "yes" or "y" declines, as does EOF.
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (yes/no): ", question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return true
	}
	return false
}
