package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	domaintool "github.com/coderunner/agentcore/internal/domain/tool"
)

// EditFileTool replaces one exact, unique occurrence of old_string with
// new_string in an existing file. Category write.
type EditFileTool struct{}

// NewEditFileTool builds an EditFileTool.
func NewEditFileTool() *EditFileTool { return &EditFileTool{} }

func (t *EditFileTool) Name() string                  { return "edit_file" }
func (t *EditFileTool) Category() domaintool.Category { return domaintool.CategoryWrite }

func (t *EditFileTool) Description() string {
	return "Replace an exact, unique substring in a file with new content. Fails if old_string is not found or occurs more than once."
}

func (t *EditFileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "The path to the file to edit"},
			"old_string": map[string]interface{}{"type": "string", "description": "The exact text to find; must appear exactly once"},
			"new_string": map[string]interface{}{"type": "string", "description": "The text to replace it with"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, input map[string]interface{}) (domaintool.Result, error) {
	path, ok := input["path"].(string)
	if !ok || path == "" {
		return domaintool.Result{Content: "path is required", IsError: true}, nil
	}
	oldStr, ok := input["old_string"].(string)
	if !ok || oldStr == "" {
		return domaintool.Result{Content: "old_string is required", IsError: true}, nil
	}
	newStr, _ := input["new_string"].(string)

	content, err := os.ReadFile(path)
	if err != nil {
		return domaintool.Result{Content: fmt.Sprintf("read %s: %v", path, err), IsError: true}, nil
	}

	count := strings.Count(string(content), oldStr)
	switch count {
	case 0:
		return domaintool.Result{Content: fmt.Sprintf("old_string not found in %s", path), IsError: true}, nil
	case 1:
		updated := strings.Replace(string(content), oldStr, newStr, 1)
		if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
			return domaintool.Result{Content: fmt.Sprintf("write %s: %v", path, err), IsError: true}, nil
		}
		return domaintool.Result{Content: fmt.Sprintf("edited %s", path)}, nil
	default:
		return domaintool.Result{
			Content: fmt.Sprintf("old_string is not unique in %s: found %d occurrences", path, count),
			IsError: true,
		}, nil
	}
}
