package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/twinself/internal/adminapi"
	"github.com/harun/twinself/internal/config"
	"github.com/harun/twinself/internal/logger"
	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/harun/twinself/pkg/scheduler"
	"github.com/harun/twinself/pkg/watch"
	"github.com/rs/zerolog"
)

// Options selects which long-running surfaces the daemon starts.
type Options struct {
	Admin     bool // serve the admin API
	Watch     bool // rebuild when data files change
	Scheduler bool // rebuild on the configured cron schedule, when enabled in config
	Version   string

	// lifecycle.Service options, used by tests to inject an embedder or clock
	ServiceOptions []lifecycle.Option
}

// Daemon runs the lifecycle service behind a serial job queue, with the admin
// API, scheduler and watcher feeding it.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	options Options

	// Core modules
	queue   *commandqueue.CommandQueue
	service *lifecycle.Service

	// Services
	adminServer *adminapi.Server
	scheduler   *scheduler.Scheduler
	watcher     *watch.Watcher

	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || log == nil {
		return nil, fmt.Errorf("config and logger are required")
	}

	observability.EnsureRegistered()
	d := &Daemon{
		config:  cfg,
		logger:  log,
		options: opts,
	}
	if err := tracing.InitOpenTelemetry("twinself", opts.Version); err != nil {
		zlog := log.Zerolog()
		zlog.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.closeCore()
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initializeCoreModules() error {
	zl := d.logger.Zerolog()

	if d.config.AuditLog != "" {
		auditPath := d.config.Resolve(d.config.AuditLog)
		if err := observability.InitAuditLogger(auditPath); err != nil {
			zl.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			zl.Info().Str("path", auditPath).Msg("Audit logger initialized")
		}
	}

	svc, err := lifecycle.New(d.config, d.logger.Component("lifecycle"), d.options.ServiceOptions...)
	if err != nil {
		return fmt.Errorf("failed to create lifecycle service: %w", err)
	}
	d.service = svc
	zl.Info().Msg("Lifecycle service initialized")

	d.queue = commandqueue.New(commandqueue.Config{
		DedupTTL: 5 * time.Minute,
		Logger:   d.logger.Component("commandqueue"),
	})
	zl.Info().Msg("Command queue initialized")
	return nil
}

func (d *Daemon) initializeServices() error {
	zl := d.logger.Zerolog()

	if d.options.Admin {
		srv, err := adminapi.NewServer(adminapi.Config{
			Host:         d.config.Admin.Host,
			Port:         d.config.Admin.Port,
			SharedSecret: d.config.Admin.SharedSecret,
			EnableCORS:   d.config.Admin.EnableCORS,
			Service:      d.service,
			Queue:        d.queue,
			Logger:       d.logger.Component("adminapi"),
		})
		if err != nil {
			return fmt.Errorf("failed to create admin server: %w", err)
		}
		d.adminServer = srv
		zl.Info().Msg("Admin API initialized")
	}

	if d.options.Scheduler && d.config.Schedule.Enabled {
		sched, err := scheduler.New(scheduler.Config{
			Expr:     d.config.Schedule.Cron,
			Timezone: d.config.Schedule.Timezone,
			Queue:    d.queue,
			Task:     d.rebuildTask("scheduler"),
			Logger:   d.logger.Component("scheduler"),
		})
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		d.scheduler = sched
		zl.Info().Str("cron", d.config.Schedule.Cron).Msg("Rebuild scheduler initialized")
	}
	return nil
}

// rebuildTask is an incremental rebuild cycle attributed to trigger.
func (d *Daemon) rebuildTask(trigger string) commandqueue.Task {
	return func(ctx context.Context) (interface{}, error) {
		if tracing.GetCycleID(ctx) == "" {
			ctx = tracing.NewCycleContext(ctx, trigger)
		}
		return d.service.Rebuild(ctx, lifecycle.Options{Trigger: trigger})
	}
}

// onDataChange queues a rebuild for a batch of changed files. A rebuild that
// is already queued will see these changes too, so no second one is added.
func (d *Daemon) onDataChange(paths []string) {
	zl := d.logger.Component("watch")
	if d.queue.GetQueueSize(commandqueue.LaneLifecycle) > 0 {
		zl.Debug().Int("files", len(paths)).Msg("Rebuild already queued, coalescing change")
		return
	}
	ctx := tracing.NewCycleContext(context.Background(), "watch")
	id, err := d.queue.Submit(ctx, commandqueue.LaneLifecycle, d.rebuildTask("watch"), &commandqueue.TaskOptions{Kind: "rebuild"})
	if err != nil {
		zl.Error().Err(err).Msg("Failed to submit rebuild for changed files")
		return
	}
	zl.Info().Int("files", len(paths)).Str("job_id", id).Msg("Data changed, rebuild submitted")
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zl := d.logger.Zerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	zl.Info().Msg("Starting twinself daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.adminServer != nil {
		if err := d.adminServer.Start(); err != nil {
			_ = d.lifecycle.Stop()
			d.setStopped()
			return fmt.Errorf("failed to start admin server: %w", err)
		}
	}

	if d.options.Watch {
		w, err := watch.New(watch.Config{
			Dirs:       d.service.DataDirs(),
			Extensions: fingerprint.DefaultExtensions,
			Debounce:   time.Duration(d.config.Watch.DebounceMs) * time.Millisecond,
			OnChange:   d.onDataChange,
			Logger:     d.logger.Component("watch"),
		})
		if err != nil {
			d.stopServices(zl)
			_ = d.lifecycle.Stop()
			d.setStopped()
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		d.watcher = w
		zl.Info().Strs("dirs", w.WatchList()).Msg("Watching data directories")
	}

	if d.scheduler != nil {
		d.scheduler.Start()
	}

	zl.Info().Msg("Twinself daemon started")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *Daemon) stopServices(zl zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			zl.Error().Err(err).Msg("Failed to stop watcher")
		}
		d.watcher = nil
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			zl.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}
	if d.adminServer != nil {
		if err := d.adminServer.Stop(ctx); err != nil {
			zl.Error().Err(err).Msg("Failed to stop admin server")
		}
	}
}

// Stop stops the daemon. A running rebuild finishes before the queue closes.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	zl := d.logger.Zerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	zl.Info().Msg("Stopping twinself daemon")

	d.stopServices(zl)

	if !d.queue.WaitForActive(30 * time.Second) {
		zl.Warn().Msg("Timed out waiting for the running job")
	}
	d.closeCore()

	if err := d.lifecycle.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}
	d.shutdownTracing()

	zl.Info().Msg("Twinself daemon stopped")
	return nil
}

func (d *Daemon) closeCore() {
	zl := d.logger.Zerolog()
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			zl.Error().Err(err).Msg("Failed to close command queue")
		}
	}
	if d.service != nil {
		if err := d.service.Close(); err != nil {
			zl.Error().Err(err).Msg("Failed to close lifecycle service")
		}
	}
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		zlog := d.logger.Zerolog()
		zlog.Warn().Err(err).Msg("Failed to shut down tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	zlog := d.logger.Zerolog()
	zlog.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		zlog := d.logger.Zerolog()
		zlog.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetService returns the lifecycle service
func (d *Daemon) GetService() *lifecycle.Service {
	return d.service
}

// GetAdminServer returns the admin API server, nil unless enabled
func (d *Daemon) GetAdminServer() *adminapi.Server {
	return d.adminServer
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}
