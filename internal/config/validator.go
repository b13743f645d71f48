package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/twinself/pkg/scheduler"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateCron validates a schedule expression and optional timezone
func (v *Validator) ValidateCron(expr, timezone string) error {
	if err := scheduler.ParseExpr(expr); err != nil {
		return err
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("invalid schedule timezone %q: %w", timezone, err)
		}
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSharedSecret requires a reasonably long admin secret when one is set
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return nil
	}
	if len(secret) < 16 {
		return fmt.Errorf("admin shared_secret must be at least 16 characters")
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey != "" && cfg.Embedding.BaseURL == "" {
		if err := v.ValidateAPIKey(cfg.Embedding.APIKey, "openai"); err != nil {
			errors = append(errors, fmt.Errorf("embedding: %w", err))
		}
	}
	if cfg.RuleGeneration.Enabled && cfg.RuleGeneration.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.RuleGeneration.APIKey, "anthropic"); err != nil {
			errors = append(errors, fmt.Errorf("rule_generation: %w", err))
		}
	}
	if cfg.Schedule.Enabled {
		if err := v.ValidateCron(cfg.Schedule.Cron, cfg.Schedule.Timezone); err != nil {
			errors = append(errors, fmt.Errorf("schedule: %w", err))
		}
	}
	if cfg.Watch.DebounceMs < 0 {
		errors = append(errors, fmt.Errorf("watch.debounce_ms must be >= 0"))
	}
	if err := v.ValidateSharedSecret(cfg.Admin.SharedSecret); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	for i, h := range cfg.Hooks.Hooks {
		if h.TimeoutSec < 0 {
			errors = append(errors, fmt.Errorf("hooks[%d]: timeout_sec must be >= 0", i))
		}
	}

	return errors
}
