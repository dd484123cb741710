package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileTool_FullAndRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rt := NewReadFileTool()

	res, err := rt.Execute(context.Background(), map[string]interface{}{"path": path})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: %v %+v", err, res)
	}
	if res.Content != "a\nb\nc\nd\n" {
		t.Fatalf("unexpected full content: %q", res.Content)
	}

	res, err = rt.Execute(context.Background(), map[string]interface{}{
		"path": path, "start_line": float64(2), "end_line": float64(3),
	})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: %v %+v", err, res)
	}
	if res.Content != "b\nc" {
		t.Fatalf("unexpected ranged content: %q", res.Content)
	}
}

func TestReadFileTool_MissingFileIsToolError(t *testing.T) {
	rt := NewReadFileTool()
	res, err := rt.Execute(context.Background(), map[string]interface{}{"path": "/nonexistent/path"})
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError true for missing file")
	}
}

func TestWriteFileTool_CreatesParentDirsAndWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "f.txt")

	wt := NewWriteFileTool()
	res, err := wt.Execute(context.Background(), map[string]interface{}{
		"path": path, "content": "hello",
	})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: %v %+v", err, res)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("unexpected written content: %q", got)
	}
}

func TestEditFileTool_UniqueReplaceSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo bar baz"), 0644); err != nil {
		t.Fatal(err)
	}

	et := NewEditFileTool()
	res, err := et.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_string": "bar", "new_string": "qux",
	})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: %v %+v", err, res)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "foo qux baz" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestEditFileTool_AmbiguousMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("bar bar"), 0644); err != nil {
		t.Fatal(err)
	}

	et := NewEditFileTool()
	res, err := et.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_string": "bar", "new_string": "qux",
	})
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError true on ambiguous match")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "bar bar" {
		t.Fatal("file must be unchanged when edit is rejected")
	}
}

func TestEditFileTool_NotFoundFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo"), 0644); err != nil {
		t.Fatal(err)
	}

	et := NewEditFileTool()
	res, err := et.Execute(context.Background(), map[string]interface{}{
		"path": path, "old_string": "nope", "new_string": "qux",
	})
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError true when old_string is absent")
	}
}

func TestListDirTool_NonRecursive(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	lt := NewListDirTool()
	res, err := lt.Execute(context.Background(), map[string]interface{}{"path": dir})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: %v %+v", err, res)
	}
	if !strings.Contains(res.Content, "a.txt") || !strings.Contains(res.Content, "sub") {
		t.Fatalf("expected listing to include both entries, got %q", res.Content)
	}
}
