package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harun/twinself/internal/daemon"
	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory and daemon status",
	Long: `Show the active memory version, collection sizes, pending data changes
and whether a twinself daemon is running.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(func(a *app) error {
		printDaemonStatus(out, daemon.PIDFilePath(a.cfg))

		st, err := a.service.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read memory status: %w", err)
		}
		printMemoryStatus(out, st)
		return nil
	})
}

func printDaemonStatus(out io.Writer, pidFile string) {
	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Daemon: stopped")
		return
	}
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		fmt.Fprintln(out, "Daemon: running")
		return
	}
	fmt.Fprintf(out, "Daemon: running (PID %d", pid)
	// PID file mtime approximates the start time
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, ", up %s", formatDuration(time.Since(info.ModTime())))
	}
	fmt.Fprintln(out, ")")
}

func printMemoryStatus(out io.Writer, st lifecycle.Status) {
	if st.Active != nil {
		fmt.Fprintf(out, "Active version: %s (%s)\n", st.Active.VersionID, formatTimestamp(*st.Active))
	} else {
		fmt.Fprintln(out, "Active version: none")
	}
	fmt.Fprintf(out, "Versions: %d, snapshots: %d\n", st.Versions, st.Snapshots)
	fmt.Fprintf(out, "Vector store: %s, embedder: %s\n", st.Backend, st.Embedder)

	fmt.Fprintln(out, "Collections:")
	for _, name := range sortedKeys(st.Collections) {
		fmt.Fprintf(out, "  %-32s %d\n", name, st.Collections[name])
	}
	fmt.Fprintln(out, "Pending changes:")
	for _, c := range changetracker.Categories {
		s := st.Pending[c]
		fmt.Fprintf(out, "  %-14s +%d ~%d -%d\n", c, s.Added, s.Modified, s.Deleted)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
