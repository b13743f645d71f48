package cli

import (
	"fmt"

	"github.com/harun/twinself/internal/config"
	"github.com/harun/twinself/internal/logger"
	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twinself",
	Short: "Twinself - versioned memory for a digital twin",
	Long: `Twinself rebuilds the semantic, episodic and procedural memory collections
of a digital twin from its data directories. Every rebuild is recorded as a
version with a snapshot of the vector store, so any version can be rolled back.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// app is what a one-shot command needs: the loaded config, the process
// logger and an open lifecycle service.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	service *lifecycle.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.FromSettings(cfg.Logging, logLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AuditLog != "" {
		if err := observability.InitAuditLogger(cfg.Resolve(cfg.AuditLog)); err != nil {
			zlog := log.Zerolog()
			zlog.Warn().Err(err).Msg("Failed to open audit log, auditing to stderr")
		}
	}

	svc, err := lifecycle.New(cfg, log.Zerolog())
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, service: svc}, nil
}

func (a *app) Close() {
	if err := a.service.Close(); err != nil {
		zlog := a.log.Zerolog()
		zlog.Warn().Err(err).Msg("Failed to close lifecycle service")
	}
	_ = a.log.Close()
}

// withApp opens the service for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
