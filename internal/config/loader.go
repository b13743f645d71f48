package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is used when no --config flag is given.
const DefaultConfigFile = "twinself.json"

// EnvPrefix prefixes every environment override, e.g. TWINSELF_EMBEDDING_API_KEY.
const EnvPrefix = "TWINSELF"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file over the defaults and applies environment
// overrides. A missing file yields the defaults plus environment.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper knows about
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.RuleGeneration.APIKey == "" {
		cfg.RuleGeneration.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("audit_log", cfg.AuditLog)

	v.SetDefault("paths.semantic_data", cfg.Paths.SemanticData)
	v.SetDefault("paths.episodic_data", cfg.Paths.EpisodicData)
	v.SetDefault("paths.procedural_data", cfg.Paths.ProceduralData)
	v.SetDefault("paths.system_prompts", cfg.Paths.SystemPrompts)
	v.SetDefault("paths.vector_store", cfg.Paths.VectorStore)
	v.SetDefault("paths.build_cache", cfg.Paths.BuildCache)
	v.SetDefault("paths.version_registry", cfg.Paths.VersionRegistry)
	v.SetDefault("paths.snapshots", cfg.Paths.Snapshots)

	v.SetDefault("collections.user_prefix", cfg.Collections.UserPrefix)
	v.SetDefault("collections.suffix", cfg.Collections.Suffix)
	v.SetDefault("vector_store.backend", cfg.VectorStore.Backend)

	v.SetDefault("embedding.provider", cfg.Embedding.Provider)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.api_key", cfg.Embedding.APIKey)
	v.SetDefault("embedding.base_url", cfg.Embedding.BaseURL)
	v.SetDefault("embedding.dimension", cfg.Embedding.Dimension)
	v.SetDefault("embedding.batch_size", cfg.Embedding.BatchSize)
	v.SetDefault("embedding.cache_size", cfg.Embedding.CacheSize)

	v.SetDefault("rule_generation.enabled", cfg.RuleGeneration.Enabled)
	v.SetDefault("rule_generation.model", cfg.RuleGeneration.Model)
	v.SetDefault("rule_generation.api_key", cfg.RuleGeneration.APIKey)
	v.SetDefault("rule_generation.max_tokens", cfg.RuleGeneration.MaxTokens)
	v.SetDefault("rule_generation.max_examples", cfg.RuleGeneration.MaxExamples)
	v.SetDefault("rule_generation.output_file", cfg.RuleGeneration.OutputFile)

	v.SetDefault("chunking.size", cfg.Chunking.Size)
	v.SetDefault("chunking.overlap", cfg.Chunking.Overlap)

	v.SetDefault("snapshots.keep_last", cfg.Snapshots.KeepLast)
	v.SetDefault("snapshots.auto_cleanup", cfg.Snapshots.AutoCleanup)
	v.SetDefault("snapshots.exclude", cfg.Snapshots.Exclude)

	v.SetDefault("schedule.enabled", cfg.Schedule.Enabled)
	v.SetDefault("schedule.cron", cfg.Schedule.Cron)
	v.SetDefault("schedule.timezone", cfg.Schedule.Timezone)
	v.SetDefault("watch.debounce_ms", cfg.Watch.DebounceMs)

	v.SetDefault("admin.host", cfg.Admin.Host)
	v.SetDefault("admin.port", cfg.Admin.Port)
	v.SetDefault("admin.shared_secret", cfg.Admin.SharedSecret)
	v.SetDefault("admin.enable_cors", cfg.Admin.EnableCORS)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("hooks.enabled", cfg.Hooks.Enabled)

	v.SetDefault("suggestions.inbox", cfg.Suggestions.Inbox)
	v.SetDefault("suggestions.output_file", cfg.Suggestions.OutputFile)
	v.SetDefault("suggestions.archive_dir", cfg.Suggestions.ArchiveDir)
}

// Save writes the configuration to the config file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("data_dir", cfg.DataDir)
	v.Set("paths", cfg.Paths)
	v.Set("collections", cfg.Collections)
	v.Set("vector_store", cfg.VectorStore)
	v.Set("embedding", cfg.Embedding)
	v.Set("rule_generation", cfg.RuleGeneration)
	v.Set("chunking", cfg.Chunking)
	v.Set("snapshots", cfg.Snapshots)
	v.Set("schedule", cfg.Schedule)
	v.Set("watch", cfg.Watch)
	v.Set("admin", cfg.Admin)
	v.Set("logging", cfg.Logging)
	v.Set("hooks", cfg.Hooks)
	v.Set("suggestions", cfg.Suggestions)
	v.Set("audit_log", cfg.AuditLog)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return DefaultConfigFile
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
