package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	domaintool "github.com/coderunner/agentcore/internal/domain/tool"
)

// ListDirTool lists a directory's entries, optionally walking
// subdirectories up to a small fixed depth.
type ListDirTool struct{}

// NewListDirTool builds a ListDirTool.
func NewListDirTool() *ListDirTool { return &ListDirTool{} }

func (t *ListDirTool) Name() string                  { return "list_dir" }
func (t *ListDirTool) Category() domaintool.Category { return domaintool.CategoryReadonly }

func (t *ListDirTool) Description() string {
	return "List the files and subdirectories in a directory."
}

func (t *ListDirTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "The directory path to list"},
			"recursive": map[string]interface{}{"type": "boolean", "description": "Whether to walk subdirectories (max depth 3)"},
		},
		"required": []string{"path"},
	}
}

const listDirMaxDepth = 3
const listDirMaxEntries = 200

func (t *ListDirTool) Execute(ctx context.Context, input map[string]interface{}) (domaintool.Result, error) {
	path, ok := input["path"].(string)
	if !ok || path == "" {
		path = "."
	}
	recursive, _ := input["recursive"].(bool)

	var lines []string
	if recursive {
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if len(lines) >= listDirMaxEntries {
				return filepath.SkipDir
			}
			rel, rerr := filepath.Rel(path, p)
			if rerr == nil && rel != "." && strings.Count(rel, string(filepath.Separator)) >= listDirMaxDepth {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			kind := "file"
			if info.IsDir() {
				kind = "dir"
			}
			lines = append(lines, fmt.Sprintf("%s\t%d\t%s", kind, info.Size(), p))
			return nil
		})
		if err != nil {
			return domaintool.Result{Content: fmt.Sprintf("list %s: %v", path, err), IsError: true}, nil
		}
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return domaintool.Result{Content: fmt.Sprintf("list %s: %v", path, err), IsError: true}, nil
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			info, ierr := e.Info()
			size := int64(0)
			if ierr == nil {
				size = info.Size()
			}
			kind := "file"
			if e.IsDir() {
				kind = "dir"
			}
			lines = append(lines, fmt.Sprintf("%s\t%d\t%s", kind, size, e.Name()))
		}
	}

	return domaintool.Result{Content: strings.Join(lines, "\n")}, nil
}
