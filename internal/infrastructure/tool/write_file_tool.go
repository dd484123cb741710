package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	domaintool "github.com/coderunner/agentcore/internal/domain/tool"
)

// WriteFileTool overwrites (or creates) a file with the given content.
// Category write: the ToolRouter runs it sequentially and the caller is
// expected to Checkpointer.Snapshot the path first.
type WriteFileTool struct{}

// NewWriteFileTool builds a WriteFileTool.
func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string                  { return "write_file" }
func (t *WriteFileTool) Category() domaintool.Category { return domaintool.CategoryWrite }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating it (and any parent directories) or overwriting it if it already exists."
}

func (t *WriteFileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "The path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "The content to write to the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]interface{}) (domaintool.Result, error) {
	path, ok := input["path"].(string)
	if !ok || path == "" {
		return domaintool.Result{Content: "path is required", IsError: true}, nil
	}
	content, ok := input["content"].(string)
	if !ok {
		return domaintool.Result{Content: "content is required", IsError: true}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return domaintool.Result{Content: fmt.Sprintf("create parent dir for %s: %v", path, err), IsError: true}, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return domaintool.Result{Content: fmt.Sprintf("write %s: %v", path, err), IsError: true}, nil
	}
	return domaintool.Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}
