// Package tool provides the example concrete Tool implementations
// (bash, file I/O) used to exercise the ToolRouter/Checkpointer/
// PermissionEngine end to end. The spec treats concrete tools beyond the
// abstract contract as out of scope; these are deliberately minimal.
package tool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domaintool "github.com/coderunner/agentcore/internal/domain/tool"
	"github.com/coderunner/agentcore/internal/infrastructure/sandbox"
)

// BashTool runs a shell command through the process sandbox. It is the
// sole Category: execute tool — every mutating shell effect a model can
// cause flows through here.
type BashTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

// NewBashTool builds a BashTool backed by sandbox.
func NewBashTool(sb *sandbox.ProcessSandbox, logger *zap.Logger) *BashTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BashTool{sandbox: sb, logger: logger}
}

func (t *BashTool) Name() string                  { return "bash" }
func (t *BashTool) Category() domaintool.Category { return domaintool.CategoryExecute }

func (t *BashTool) Description() string {
	return `Execute a bash command in a sandboxed process.
- Default timeout is 120s; pass timeout_seconds to extend it, up to a 600s hard cap.
- A command killed for exceeding its timeout returns an error starting "command timed out after".
- Avoid interactive or long-running commands (top, watch, tail -f).`
}

func (t *BashTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The bash command to execute",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Optional timeout override in seconds (capped at 600)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, input map[string]interface{}) (domaintool.Result, error) {
	command, ok := input["command"].(string)
	if !ok || command == "" {
		return domaintool.Result{Content: "command is required", IsError: true}, nil
	}

	timeout := sandbox.DefaultShellTimeout
	if secs, ok := input["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	t.logger.Info("executing bash command", zap.String("command", command))

	result, err := t.sandbox.ExecuteShellWithTimeout(ctx, command, timeout)
	if err != nil {
		msg := err.Error()
		if result != nil && result.Stderr != "" {
			msg = fmt.Sprintf("%s\n%s", msg, result.Stderr)
		}
		return domaintool.Result{Content: msg, IsError: true}, nil
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}
	if result.ExitCode != 0 {
		return domaintool.Result{
			Content: fmt.Sprintf("exit code %d\n%s", result.ExitCode, output),
			IsError: true,
		}, nil
	}
	return domaintool.Result{Content: output}, nil
}
