package cli

import (
	"errors"
	"fmt"

	"github.com/harun/twinself/internal/daemon"
	"github.com/spf13/cobra"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and scheduled rebuilds",
	Long: `Run the twinself daemon in the foreground. It serves the admin API,
runs scheduled rebuilds when a schedule is enabled and, with --watch, rebuilds
whenever data files change. All rebuilds and rollbacks run one at a time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(daemon.Options{Admin: true, Scheduler: true, Watch: serveWatch})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever data files change",
	Long: `Watch the data directories and run an incremental rebuild after each
burst of changes. Runs in the foreground until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(daemon.Options{Watch: true})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also rebuild when data files change")
	rootCmd.AddCommand(serveCmd, watchCmd)
}

func runDaemon(opts daemon.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	opts.Version = version
	d, err := daemon.New(cfg, log, opts)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
		}
		return err
	}
	if srv := d.GetAdminServer(); srv != nil {
		zlog := log.Zerolog()
		zlog.Info().Str("addr", srv.Addr()).Msg("Admin API listening")
	}

	d.Wait()
	return nil
}

func isRunning(pidFile string) bool {
	return daemon.ProcessAlive(pidFile)
}
