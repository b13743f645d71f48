package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harun/twinself/pkg/changetracker"
)

// Config represents the twinself configuration
type Config struct {
	// Base directory that relative paths resolve against
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Paths          PathsConfig          `json:"paths" mapstructure:"paths"`
	Collections    CollectionsConfig    `json:"collections" mapstructure:"collections"`
	VectorStore    VectorStoreConfig    `json:"vector_store" mapstructure:"vector_store"`
	Embedding      EmbeddingConfig      `json:"embedding" mapstructure:"embedding"`
	RuleGeneration RuleGenerationConfig `json:"rule_generation" mapstructure:"rule_generation"`
	Chunking       ChunkingConfig       `json:"chunking" mapstructure:"chunking"`
	Snapshots      SnapshotsConfig      `json:"snapshots" mapstructure:"snapshots"`
	Schedule       ScheduleConfig       `json:"schedule" mapstructure:"schedule"`
	Watch          WatchConfig          `json:"watch" mapstructure:"watch"`
	Admin          AdminConfig          `json:"admin" mapstructure:"admin"`
	Logging        LoggingConfig        `json:"logging" mapstructure:"logging"`
	Hooks          HooksConfig          `json:"hooks" mapstructure:"hooks"`
	Suggestions    SuggestionsConfig    `json:"suggestions" mapstructure:"suggestions"`

	// JSON-lines audit log; empty disables auditing
	AuditLog string `json:"audit_log" mapstructure:"audit_log"`
}

// PathsConfig locates the data directories and state files
type PathsConfig struct {
	SemanticData    string `json:"semantic_data" mapstructure:"semantic_data"`
	EpisodicData    string `json:"episodic_data" mapstructure:"episodic_data"`
	ProceduralData  string `json:"procedural_data" mapstructure:"procedural_data"`
	SystemPrompts   string `json:"system_prompts" mapstructure:"system_prompts"`
	VectorStore     string `json:"vector_store" mapstructure:"vector_store"`
	BuildCache      string `json:"build_cache" mapstructure:"build_cache"`
	VersionRegistry string `json:"version_registry" mapstructure:"version_registry"`
	Snapshots       string `json:"snapshots" mapstructure:"snapshots"`
}

// CollectionsConfig controls collection naming
type CollectionsConfig struct {
	UserPrefix string `json:"user_prefix" mapstructure:"user_prefix"`
	Suffix     string `json:"suffix" mapstructure:"suffix"`
}

// VectorStoreConfig selects the vector store backend
type VectorStoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // sqlite, chromem
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // openai, mock
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
	BatchSize int    `json:"batch_size" mapstructure:"batch_size"`
	CacheSize int    `json:"cache_size" mapstructure:"cache_size"`
}

// RuleGenerationConfig configures procedural rule generation
type RuleGenerationConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Model       string `json:"model" mapstructure:"model"`
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	MaxTokens   int    `json:"max_tokens" mapstructure:"max_tokens"`
	MaxExamples int    `json:"max_examples" mapstructure:"max_examples"`
	OutputFile  string `json:"output_file" mapstructure:"output_file"` // relative to procedural_data
}

// ChunkingConfig controls semantic text splitting
type ChunkingConfig struct {
	Size    int `json:"size" mapstructure:"size"`
	Overlap int `json:"overlap" mapstructure:"overlap"`
}

// SnapshotsConfig controls snapshot retention
type SnapshotsConfig struct {
	KeepLast    int      `json:"keep_last" mapstructure:"keep_last"`
	AutoCleanup bool     `json:"auto_cleanup" mapstructure:"auto_cleanup"`
	Exclude     []string `json:"exclude" mapstructure:"exclude"`
}

// ScheduleConfig controls scheduled rebuilds
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Cron     string `json:"cron" mapstructure:"cron"`
	Timezone string `json:"timezone" mapstructure:"timezone"`
}

// WatchConfig controls the file watcher
type WatchConfig struct {
	DebounceMs int `json:"debounce_ms" mapstructure:"debounce_ms"`
}

// AdminConfig holds admin API server configuration
type AdminConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
	EnableCORS   bool   `json:"enable_cors" mapstructure:"enable_cors"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// SuggestionsConfig locates the user suggestion inbox. The inbox and archive
// must stay outside episodic_data, which is scanned recursively.
type SuggestionsConfig struct {
	Inbox      string `json:"inbox" mapstructure:"inbox"`
	OutputFile string `json:"output_file" mapstructure:"output_file"` // relative to episodic_data
	ArchiveDir string `json:"archive_dir" mapstructure:"archive_dir"`
}

// HooksConfig registers shell scripts run on lifecycle events
type HooksConfig struct {
	Enabled bool         `json:"enabled" mapstructure:"enabled"`
	Hooks   []HookConfig `json:"hooks" mapstructure:"hooks"`
}

// HookConfig is a single hook; Event is version:created, rebuild:failed or rollback:completed
type HookConfig struct {
	ID         string `json:"id" mapstructure:"id"`
	Event      string `json:"event" mapstructure:"event"`
	Script     string `json:"script" mapstructure:"script"`
	TimeoutSec int    `json:"timeout_sec" mapstructure:"timeout_sec"`
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".",
		Paths: PathsConfig{
			SemanticData:    "semantic_data",
			EpisodicData:    "episodic_data",
			ProceduralData:  "procedural_data",
			SystemPrompts:   "system_prompts",
			VectorStore:     "data/qdrant/twinself",
			BuildCache:      "data/build_cache.json",
			VersionRegistry: "data/versions.json",
			Snapshots:       "data/snapshots",
		},
		Collections: CollectionsConfig{
			UserPrefix: "user",
			Suffix:     "hg",
		},
		VectorStore: VectorStoreConfig{
			Backend: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 100,
			CacheSize: 1024,
		},
		RuleGeneration: RuleGenerationConfig{
			Enabled:     true,
			Model:       "claude-sonnet-4-5",
			MaxTokens:   2048,
			MaxExamples: 50,
			OutputFile:  "generated_procedural_rules.json",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Snapshots: SnapshotsConfig{
			KeepLast:    5,
			AutoCleanup: true,
			Exclude:     []string{"**/*.lock", "**/.lock", "**/*.tmp", "**/*.temp"},
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 3 * * *",
		},
		Watch: WatchConfig{
			DebounceMs: 2000,
		},
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Suggestions: SuggestionsConfig{
			Inbox:      "data/user_suggestions.json",
			OutputFile: "user_feedback_examples.json",
			ArchiveDir: "data/suggestions_archive",
		},
	}
}

// Resolve returns p joined to DataDir unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// CollectionName returns {prefix}_{category}_memory_{suffix}.
func (c *Config) CollectionName(category changetracker.Category) string {
	name := fmt.Sprintf("%s_%s_memory", c.Collections.UserPrefix, category)
	if c.Collections.Suffix != "" {
		name += "_" + c.Collections.Suffix
	}
	return name
}

// CategoryDir returns the resolved source directory of a category.
func (c *Config) CategoryDir(category changetracker.Category) string {
	switch category {
	case changetracker.CategorySemantic:
		return c.Resolve(c.Paths.SemanticData)
	case changetracker.CategoryEpisodic:
		return c.Resolve(c.Paths.EpisodicData)
	case changetracker.CategoryProcedural:
		return c.Resolve(c.Paths.ProceduralData)
	case changetracker.CategorySystemPrompt:
		return c.Resolve(c.Paths.SystemPrompts)
	}
	return ""
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Embedding.APIKey = mask(c.Embedding.APIKey)
	masked.RuleGeneration.APIKey = mask(c.RuleGeneration.APIKey)
	masked.Admin.SharedSecret = mask(c.Admin.SharedSecret)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Validate checks structural validity. Credential format checks live in Validator.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	for name, p := range map[string]string{
		"semantic_data":    c.Paths.SemanticData,
		"episodic_data":    c.Paths.EpisodicData,
		"procedural_data":  c.Paths.ProceduralData,
		"system_prompts":   c.Paths.SystemPrompts,
		"vector_store":     c.Paths.VectorStore,
		"build_cache":      c.Paths.BuildCache,
		"version_registry": c.Paths.VersionRegistry,
		"snapshots":        c.Paths.Snapshots,
	} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("paths.%s is required", name)
		}
	}
	if c.Collections.UserPrefix == "" {
		return fmt.Errorf("collections.user_prefix is required")
	}

	switch c.VectorStore.Backend {
	case "sqlite", "chromem":
	default:
		return fmt.Errorf("invalid vector_store.backend %q (must be: sqlite, chromem)", c.VectorStore.Backend)
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for the openai provider")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid embedding.provider %q (must be: openai, mock)", c.Embedding.Provider)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size)")
	}
	if c.Snapshots.KeepLast < 1 {
		return fmt.Errorf("snapshots.keep_last must be at least 1")
	}
	if c.RuleGeneration.Enabled && c.RuleGeneration.OutputFile == "" {
		return fmt.Errorf("rule_generation.output_file is required when enabled")
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin.port %d", c.Admin.Port)
	}
	if c.Suggestions.Inbox == "" || c.Suggestions.OutputFile == "" || c.Suggestions.ArchiveDir == "" {
		return fmt.Errorf("suggestions.inbox, output_file and archive_dir are required")
	}
	episodic := c.CategoryDir(changetracker.CategoryEpisodic)
	for name, p := range map[string]string{"inbox": c.Suggestions.Inbox, "archive_dir": c.Suggestions.ArchiveDir} {
		if within(episodic, c.Resolve(p)) {
			return fmt.Errorf("suggestions.%s must be outside episodic_data", name)
		}
	}
	return nil
}

// SuggestionsOutput is the episodic file processed suggestions are written to.
func (c *Config) SuggestionsOutput() string {
	return filepath.Join(c.CategoryDir(changetracker.CategoryEpisodic), c.Suggestions.OutputFile)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
