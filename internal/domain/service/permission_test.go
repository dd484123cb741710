package service

import (
	"testing"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

func dangerousCall() entity.ToolCall {
	return entity.ToolCall{Name: "bash", Input: map[string]interface{}{"command": "sudo rm -rf /tmp"}}
}

// S6 — dangerous-command denial overrides mode, except yolo.
func TestPermissionEngine_S6_DangerousCommandDenial(t *testing.T) {
	for _, mode := range []Mode{ModeNormal, ModeAutoEdit} {
		e := NewPermissionEngine(mode, nil, nil)
		if got := e.Check(dangerousCall(), tool.CategoryExecute); got != Denied {
			t.Errorf("mode=%s: got %s, want Denied", mode, got)
		}
	}

	e := NewPermissionEngine(ModeYolo, nil, nil)
	if got := e.Check(dangerousCall(), tool.CategoryExecute); got != Allowed {
		t.Errorf("yolo mode: got %s, want Allowed", got)
	}
}

// Invariant 6 — plan mode denies every non-readonly category.
func TestPermissionEngine_PlanModeDeniesNonReadonly(t *testing.T) {
	e := NewPermissionEngine(ModePlan, nil, nil)
	call := entity.ToolCall{Name: "write_file"}

	for _, cat := range []tool.Category{tool.CategoryWrite, tool.CategoryExecute, tool.CategoryInteractive} {
		if got := e.Check(call, cat); got != Denied {
			t.Errorf("plan mode category=%s: got %s, want Denied", cat, got)
		}
	}
	if got := e.Check(call, tool.CategoryReadonly); got != Allowed {
		t.Errorf("plan mode readonly: got %s, want Allowed", got)
	}
}

func TestPermissionEngine_DefaultsByCategory(t *testing.T) {
	e := NewPermissionEngine(ModeNormal, nil, nil)
	call := entity.ToolCall{Name: "write_file"}

	if got := e.Check(call, tool.CategoryReadonly); got != Allowed {
		t.Errorf("readonly default: got %s", got)
	}
	if got := e.Check(call, tool.CategoryWrite); got != Ask {
		t.Errorf("write default in normal mode: got %s, want Ask", got)
	}
	if got := e.Check(call, tool.CategoryExecute); got != Ask {
		t.Errorf("execute default: got %s, want Ask", got)
	}

	autoEdit := NewPermissionEngine(ModeAutoEdit, nil, nil)
	if got := autoEdit.Check(call, tool.CategoryWrite); got != Allowed {
		t.Errorf("write default in auto-edit mode: got %s, want Allowed", got)
	}
}

func TestPermissionEngine_SessionAllowList(t *testing.T) {
	e := NewPermissionEngine(ModeNormal, nil, nil)
	call := entity.ToolCall{Name: "bash", Input: map[string]interface{}{"command": "ls"}}

	if got := e.Check(call, tool.CategoryExecute); got != Ask {
		t.Fatalf("expected Ask before granting session trust, got %s", got)
	}

	e.AllowForSession("bash")
	if got := e.Check(call, tool.CategoryExecute); got != Allowed {
		t.Errorf("expected Allowed after session allow-list grant, got %s", got)
	}
}

func TestPermissionEngine_UserRuleFirstMatchWins(t *testing.T) {
	rules := []PermissionRule{
		{Type: RuleDeny, ToolPattern: "danger_*"},
		{Type: RuleAllow, ToolPattern: "*"},
	}
	e := NewPermissionEngine(ModeNormal, rules, nil)

	if got := e.Check(entity.ToolCall{Name: "danger_tool"}, tool.CategoryExecute); got != Denied {
		t.Errorf("expected first matching rule (deny) to win, got %s", got)
	}
	if got := e.Check(entity.ToolCall{Name: "safe_tool"}, tool.CategoryExecute); got != Allowed {
		t.Errorf("expected fallthrough rule (allow) to win, got %s", got)
	}
}
