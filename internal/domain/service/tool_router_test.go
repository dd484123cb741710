package service

import (
	gocontext "context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

type delayTool struct {
	name    string
	cat     tool.Category
	delay   time.Duration
	current *int32
	max     *int32
	fail    bool
}

func (d *delayTool) Name() string                        { return d.name }
func (d *delayTool) Description() string                 { return "" }
func (d *delayTool) InputSchema() map[string]interface{} { return nil }
func (d *delayTool) Category() tool.Category              { return d.cat }

func (d *delayTool) Execute(ctx gocontext.Context, in map[string]interface{}) (tool.Result, error) {
	n := atomic.AddInt32(d.current, 1)
	for {
		old := atomic.LoadInt32(d.max)
		if n <= old || atomic.CompareAndSwapInt32(d.max, old, n) {
			break
		}
	}
	time.Sleep(d.delay)
	atomic.AddInt32(d.current, -1)
	if d.fail {
		return tool.Result{}, errFail
	}
	return tool.Result{Content: "ok"}, nil
}

var errFail = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func newTestRouter(t *testing.T) (*ToolRouter, *tool.InMemoryRegistry) {
	t.Helper()
	reg := tool.NewInMemoryRegistry()
	perm := NewPermissionEngine(ModeYolo, nil, nil)
	cp := NewCheckpointer(0, nil)
	return NewToolRouter(reg, perm, cp, nil), reg
}

// S4 — parallel readonly + sequential write.
func TestToolRouter_S4_ParallelReadonlySequentialWrite(t *testing.T) {
	router, reg := newTestRouter(t)

	var roCurrent, roMax, wCurrent, wMax int32
	_ = reg.Register(&delayTool{name: "ro1", cat: tool.CategoryReadonly, delay: 120 * time.Millisecond, current: &roCurrent, max: &roMax})
	_ = reg.Register(&delayTool{name: "ro2", cat: tool.CategoryReadonly, delay: 120 * time.Millisecond, current: &roCurrent, max: &roMax})
	_ = reg.Register(&delayTool{name: "w1", cat: tool.CategoryWrite, delay: 50 * time.Millisecond, current: &wCurrent, max: &wMax})

	calls := []entity.ToolCall{
		{ID: "a", Name: "ro1"},
		{ID: "b", Name: "ro2"},
		{ID: "c", Name: "w1"},
	}

	start := time.Now()
	results := router.Execute(gocontext.Background(), calls)
	elapsed := time.Since(start)

	if elapsed >= 220*time.Millisecond {
		t.Errorf("expected wall time < 220ms, got %v", elapsed)
	}
	if roMax != 2 {
		t.Errorf("expected max concurrent readonly = 2, got %d", roMax)
	}
	if wMax != 1 {
		t.Errorf("expected max concurrent write = 1, got %d", wMax)
	}
	if len(results) != 3 || results[0].ToolUseID != "a" || results[1].ToolUseID != "b" || results[2].ToolUseID != "c" {
		t.Errorf("expected results in original call order, got %+v", results)
	}
}

// S3 — tool error continuation: a throwing tool yields is_error=true.
func TestToolRouter_S3_ToolErrorBecomesErrorResult(t *testing.T) {
	router, reg := newTestRouter(t)
	var cur, max int32
	_ = reg.Register(&delayTool{name: "boom", cat: tool.CategoryExecute, current: &cur, max: &max, fail: true})

	results := router.Execute(gocontext.Background(), []entity.ToolCall{{ID: "x", Name: "boom"}})
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected is_error=true result, got %+v", results)
	}
}

func TestToolRouter_UnknownTool(t *testing.T) {
	router, _ := newTestRouter(t)
	results := router.Execute(gocontext.Background(), []entity.ToolCall{{ID: "x", Name: "nope"}})
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected is_error result for unknown tool, got %+v", results)
	}
}

func TestToolRouter_AskWithoutHandlerIsDenied(t *testing.T) {
	reg := tool.NewInMemoryRegistry()
	perm := NewPermissionEngine(ModeNormal, nil, nil)
	cp := NewCheckpointer(0, nil)
	router := NewToolRouter(reg, perm, cp, nil)

	var cur, max int32
	_ = reg.Register(&delayTool{name: "bash", cat: tool.CategoryExecute, current: &cur, max: &max})

	results := router.Execute(gocontext.Background(), []entity.ToolCall{{ID: "x", Name: "bash"}})
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected permission-denied error result, got %+v", results)
	}
}
