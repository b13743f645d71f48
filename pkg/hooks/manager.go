package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle events a hook can subscribe to.
const (
	EventVersionCreated = "version:created"
	EventRebuildFailed  = "rebuild:failed"
	EventRollback       = "rollback:completed"
)

// Events lists every event a hook may name.
var Events = []string{EventVersionCreated, EventRebuildFailed, EventRollback}

// DefaultTimeout bounds a hook that sets no timeout.
const DefaultTimeout = 30 * time.Second

// EnvPrefix prefixes the variables a hook script receives.
const EnvPrefix = "TWINSELF_HOOK_"

// Hook runs Script through /bin/sh when Event fires.
type Hook struct {
	ID      string
	Event   string
	Script  string
	Timeout time.Duration
	Enabled bool
}

// Config configures a Hook manager.
type Config struct {
	Enabled bool
	Hooks   []Hook
	Logger  zerolog.Logger
}

// Manager runs the scripts registered for lifecycle events. The map is
// built once in NewManager and only read afterwards.
type Manager struct {
	enabled bool
	logger  zerolog.Logger
	byEvent map[string][]Hook
}

// NewManager validates and indexes the enabled hooks.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		enabled: cfg.Enabled,
		logger:  cfg.Logger.With().Str("component", "hooks").Logger(),
		byEvent: make(map[string][]Hook),
	}
	if !cfg.Enabled {
		return m, nil
	}

	for i, hook := range cfg.Hooks {
		if !hook.Enabled {
			continue
		}
		hook.Event = strings.TrimSpace(hook.Event)
		if !knownEvent(hook.Event) {
			return nil, fmt.Errorf("hook %d: unknown event %q (must be one of: %s)", i, hook.Event, strings.Join(Events, ", "))
		}
		if strings.TrimSpace(hook.Script) == "" {
			return nil, fmt.Errorf("hook %d: script is required for event %q", i, hook.Event)
		}
		if hook.ID == "" {
			hook.ID = fmt.Sprintf("%s#%d", hook.Event, i)
		}
		if hook.Timeout <= 0 {
			hook.Timeout = DefaultTimeout
		}
		m.byEvent[hook.Event] = append(m.byEvent[hook.Event], hook)
	}
	return m, nil
}

func knownEvent(event string) bool {
	for _, e := range Events {
		if e == event {
			return true
		}
	}
	return false
}

// Count returns how many hooks are registered for event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	return len(m.byEvent[event])
}

// Trigger runs every hook for event in registration order and joins their errors.
func (m *Manager) Trigger(ctx context.Context, event string, data map[string]interface{}) error {
	if m == nil || !m.enabled {
		return nil
	}
	hooks := m.byEvent[event]
	if len(hooks) == 0 {
		return nil
	}

	var errs []error
	for _, hook := range hooks {
		if err := m.run(ctx, event, hook, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) run(ctx context.Context, event string, hook Hook, data map[string]interface{}) error {
	runCtx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Script)
	cmd.Env = environment(event, data)

	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		if text != "" {
			return fmt.Errorf("hook %s failed: %w: %s", hook.ID, err, text)
		}
		return fmt.Errorf("hook %s failed: %w", hook.ID, err)
	}

	m.logger.Debug().
		Str("event", event).
		Str("hook_id", hook.ID).
		Dur("duration", time.Since(start)).
		Str("output", text).
		Msg("Hook executed")
	return nil
}

// environment is the process environment plus TWINSELF_HOOK_EVENT and one
// TWINSELF_HOOK_<KEY> per data entry.
func environment(event string, data map[string]interface{}) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, EnvPrefix+"EVENT="+event)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, EnvPrefix+envKey(k)+"="+fmt.Sprint(data[k]))
	}
	return env
}

func envKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		}
		return '_'
	}, key)
}
