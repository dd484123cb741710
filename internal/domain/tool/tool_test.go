package tool

import (
	"context"
	"testing"
)

type stubTool struct {
	name string
	cat  Category
}

func (s *stubTool) Name() string                             { return s.name }
func (s *stubTool) Description() string                      { return "stub" }
func (s *stubTool) InputSchema() map[string]interface{}      { return map[string]interface{}{} }
func (s *stubTool) Category() Category                       { return s.cat }
func (s *stubTool) Execute(ctx context.Context, in map[string]interface{}) (Result, error) {
	return Result{Content: "ok"}, nil
}

func TestInMemoryRegistry_RegisterDuplicateFails(t *testing.T) {
	r := NewInMemoryRegistry()
	if err := r.Register(&stubTool{name: "read", cat: CategoryReadonly}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubTool{name: "read", cat: CategoryReadonly}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestInMemoryRegistry_GetAndDefinitions(t *testing.T) {
	r := NewInMemoryRegistry()
	_ = r.Register(&stubTool{name: "write", cat: CategoryWrite})

	tl, ok := r.Get("write")
	if !ok || tl.Name() != "write" {
		t.Fatal("expected to find registered tool")
	}

	defs := r.Definitions()
	if len(defs) != 1 || defs[0].Category != CategoryWrite {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}
