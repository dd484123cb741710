// Package config loads the runtime's own tunables — nothing about
// terminal rendering, CLI flags, or editor launching lives here; those
// are explicitly out of scope (spec §1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of runtime-adjustable tunables.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Agent    AgentConfig    `mapstructure:"agent"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the session-index backing store (see
// internal/infrastructure/persistence/index). The journal itself is a
// plain file path, not a database.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LLMProviderConfig configures one Go-native LLM provider (used by llm.Router).
type LLMProviderConfig struct {
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"` // openai, anthropic, gemini
	BaseURL  string   `mapstructure:"base_url"`
	APIKey   string   `mapstructure:"api_key"`
	Models   []string `mapstructure:"models"`
	Priority int      `mapstructure:"priority"`
}

// AgentConfig holds everything that shapes one AgentLoop's behavior.
type AgentConfig struct {
	DefaultModel    string              `mapstructure:"default_model"`
	DefaultProvider string              `mapstructure:"default_provider"`
	Providers       []LLMProviderConfig `mapstructure:"providers"`

	// PermissionMode is one of normal | auto-edit | yolo | plan (service.Mode).
	PermissionMode      string `mapstructure:"permission_mode"`
	PermissionRulesFile string `mapstructure:"permission_rules_file"` // YAML rule file, hot-reloaded

	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Compaction CompactionConfig `mapstructure:"compaction"`
}

// RuntimeConfig mirrors service.AgentLoopConfig plus the cross-cutting
// knobs (retry, checkpoint depth) that live outside it.
type RuntimeConfig struct {
	MaxTurns        int           `mapstructure:"max_turns"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	ThinkingBudget  int           `mapstructure:"thinking_budget"`

	LoopWindowSize      int `mapstructure:"loop_window_size"`
	LoopDetectThreshold int `mapstructure:"loop_detect_threshold"`
	LoopNameThreshold   int `mapstructure:"loop_name_threshold"`

	CheckpointCap int           `mapstructure:"checkpoint_cap"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBaseWait time.Duration `mapstructure:"retry_base_wait"`
}

// CompactionConfig mirrors the tunables service.ContextManager's
// compaction algorithm (spec §4.9) is parameterized by.
type CompactionConfig struct {
	CompactThreshold   float64 `mapstructure:"compact_threshold"`    // fraction of budget that triggers compaction
	RecentMessageCount int     `mapstructure:"recent_message_count"` // always-verbatim trailing window
	MaxSummaryMessages int     `mapstructure:"max_summary_messages"` // cap on candidates fed to one summarize call
	SummaryModel       string  `mapstructure:"summary_model"`        // cheaper model used for summarization
}

// Load reads config.yaml from a global directory (~/.agentcore), then
// overlays a project-local config.yaml if present, then applies
// AGENTCORE_-prefixed environment variable overrides — lowest to
// highest priority, mirroring the teacher's layered approach.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".agentcore")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("AGENTCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "agentcore-index.db")

	v.SetDefault("agent.permission_mode", "normal")
	v.SetDefault("agent.permission_rules_file", filepath.Join(os.Getenv("HOME"), ".agentcore", "rules.yaml"))

	v.SetDefault("agent.runtime.max_turns", 25)
	v.SetDefault("agent.runtime.max_output_tokens", 4096)
	v.SetDefault("agent.runtime.temperature", 0.7)
	v.SetDefault("agent.runtime.thinking_budget", 0)
	v.SetDefault("agent.runtime.loop_window_size", 10)
	v.SetDefault("agent.runtime.loop_detect_threshold", 5)
	v.SetDefault("agent.runtime.loop_name_threshold", 8)
	v.SetDefault("agent.runtime.checkpoint_cap", 50)
	v.SetDefault("agent.runtime.max_retries", 3)
	v.SetDefault("agent.runtime.retry_base_wait", "1s")

	v.SetDefault("agent.compaction.compact_threshold", 0.85)
	v.SetDefault("agent.compaction.recent_message_count", 10)
	v.SetDefault("agent.compaction.max_summary_messages", 15)
	v.SetDefault("agent.compaction.summary_model", "")
}
