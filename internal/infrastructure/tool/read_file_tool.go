package tool

import (
	"fmt"
	"os"
	"strings"

	"context"

	domaintool "github.com/coderunner/agentcore/internal/domain/tool"
)

// ReadFileTool reads a file's contents directly off disk, optionally
// restricted to a 1-indexed line range.
type ReadFileTool struct{}

// NewReadFileTool builds a ReadFileTool.
func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string                  { return "read_file" }
func (t *ReadFileTool) Category() domaintool.Category { return domaintool.CategoryReadonly }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file, optionally restricted to a line range."
}

func (t *ReadFileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "The path to the file to read"},
			"start_line": map[string]interface{}{"type": "integer", "description": "Optional starting line number (1-indexed)"},
			"end_line":   map[string]interface{}{"type": "integer", "description": "Optional ending line number (1-indexed, inclusive)"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]interface{}) (domaintool.Result, error) {
	path, ok := input["path"].(string)
	if !ok || path == "" {
		return domaintool.Result{Content: "path is required", IsError: true}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return domaintool.Result{Content: fmt.Sprintf("read %s: %v", path, err), IsError: true}, nil
	}

	start, hasStart := input["start_line"].(float64)
	end, hasEnd := input["end_line"].(float64)
	if !hasStart && !hasEnd {
		return domaintool.Result{Content: string(content)}, nil
	}

	lines := strings.Split(string(content), "\n")
	from := 1
	to := len(lines)
	if hasStart {
		from = int(start)
	}
	if hasEnd {
		to = int(end)
	}
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > to {
		return domaintool.Result{Content: ""}, nil
	}
	return domaintool.Result{Content: strings.Join(lines[from-1:to], "\n")}, nil
}
