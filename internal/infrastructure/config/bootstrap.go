package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "agentcore"

// WorkspaceDirName is the directory name used for workspace-level config.
// Place .agentcore/ in a project root for project-specific overrides.
const WorkspaceDirName = "." + AppName

// HomeDir returns the user's agentcore configuration home: ~/.agentcore
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.agentcore directory exists with all default
// content. Called once at startup. Safe to call multiple times — only
// creates missing items, never overwrites user edits.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{
		root,
		filepath.Join(root, "prompts"),
		filepath.Join(root, "logs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	// Default files — only written if they don't already exist.
	defaults := map[string]string{
		filepath.Join(root, "config.yaml"):          defaultConfig,
		filepath.Join(root, "rules.yaml"):            defaultPermissionRules,
		filepath.Join(root, "prompts", "system.md"):  defaultSystemPrompt,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("agentcore bootstrap complete",
			zap.String("home", root),
			zap.Int("files_created", created),
		)
	} else {
		logger.Debug("agentcore home directory OK", zap.String("home", root))
	}

	return nil
}

// ──────────────────────────────────────────────────────────────
// Embedded default file contents
// ──────────────────────────────────────────────────────────────

const defaultConfig = `# ═══════════════════════════════════════════════════════════════
# agentcore configuration
# Auto-generated on first launch — feel free to edit.
# ═══════════════════════════════════════════════════════════════

log:
  level: info                  # debug | info | warn | error
  format: json                 # json | console

# Secondary queryable index over the session journal (search by id/time).
# The journal itself is the append-only source of truth, not this table.
database:
  type: sqlite                 # sqlite | postgres
  dsn: agentcore-index.db

agent:
  default_model: ""            # e.g. "claude-sonnet-4-20250514"
  default_provider: ""         # must match one of providers[].name

  # One or more LLM providers. Priority: lower number = preferred.
  providers: []
  # Example:
  # providers:
  #   - name: anthropic
  #     type: anthropic
  #     base_url: "https://api.anthropic.com/v1"
  #     api_key: "sk-ant-..."
  #     models: ["claude-sonnet-4-20250514"]
  #     priority: 1

  # One of: normal | auto-edit | yolo | plan.
  permission_mode: normal
  permission_rules_file: "~/.agentcore/rules.yaml"

  runtime:
    max_turns: 25
    max_output_tokens: 4096
    temperature: 0.7
    # thinking_budget: 4096  # uncomment to request extended thinking on providers that support it

    loop_window_size: 10
    loop_detect_threshold: 5
    loop_name_threshold: 8

    checkpoint_cap: 50
    max_retries: 3
    retry_base_wait: 1s

  compaction:
    compact_threshold: 0.85     # fraction of the model's context budget that triggers compaction
    recent_message_count: 10    # trailing messages always kept verbatim
    max_summary_messages: 15    # cap on candidates fed to one summarize call
    summary_model: ""           # empty = reuse agent.default_model
`

const defaultPermissionRules = `# Permission rules for agentcore, evaluated top to bottom; the first rule
# whose tool/path_pattern/command_pattern all match wins. An empty pattern
# matches anything. This file is hot-reloaded while the agent runs.
#
# - type: allow            # allow | deny | ask
#   tool: "read_file"
#   path_pattern: "**"
#
# - type: deny
#   tool: "bash"
#   command_pattern: "rm -rf *"
`

const defaultSystemPrompt = `You are a terminal-based coding assistant. You read, write, and run code
directly in the user's workspace through the tools you are given.

## Operating rules

- Your current working directory is the user's workspace. Do not assume
  files exist without checking.
- Read a file's current content before editing it.
- Do not produce placeholder, mock, or stub code — implementations should
  be complete and working.
- If a tool call fails, look at the error and retry with corrected
  arguments rather than giving up.
- Prefer the most specific tool available over a shell command.
- Be concise — don't restate what a tool result already showed.
`
