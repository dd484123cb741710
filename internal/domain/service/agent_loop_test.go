package service

import (
	"context"
	"testing"

	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

// scriptedProvider replays one fixed StreamMessage response per call, in
// order, clamping to the last scripted turn once exhausted.
type scriptedProvider struct {
	fakeProvider
	turns [][]entity.StreamEvent
	calls int
}

func scriptTurns(turns ...[]entity.StreamEvent) *scriptedProvider {
	return &scriptedProvider{turns: turns}
}

func (s *scriptedProvider) StreamMessage(ctx context.Context, req CompletionRequest) (<-chan entity.StreamEvent, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.turns) {
		idx = len(s.turns) - 1
	}
	ch := make(chan entity.StreamEvent, len(s.turns[idx]))
	for _, ev := range s.turns[idx] {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type echoTool struct{}

func (echoTool) Name() string                        { return "echo" }
func (echoTool) Description() string                 { return "echoes input" }
func (echoTool) InputSchema() map[string]interface{} { return nil }
func (echoTool) Category() tool.Category             { return tool.CategoryReadonly }
func (echoTool) Execute(ctx context.Context, in map[string]interface{}) (tool.Result, error) {
	return tool.Result{Content: "echoed"}, nil
}

func newTestLoop(t *testing.T, provider ProviderStream, router *ToolRouter, maxTurns int) *AgentLoop {
	t.Helper()
	log := ctxpkg.NewMessageLog(nil)
	cfg := DefaultAgentLoopConfig()
	if maxTurns > 0 {
		cfg.MaxTurns = maxTurns
	}
	return NewAgentLoop(provider, router, nil, log, cfg, nil)
}

// S1 — a streaming two-turn cycle: turn 1 requests a tool, turn 2 finishes.
func TestAgentLoop_S1_TwoTurnToolCycle(t *testing.T) {
	reg := tool.NewInMemoryRegistry()
	_ = reg.Register(echoTool{})
	perm := NewPermissionEngine(ModeYolo, nil, nil)
	cp := NewCheckpointer(0, nil)
	router := NewToolRouter(reg, perm, cp, nil)

	provider := scriptTurns(
		[]entity.StreamEvent{
			{Type: entity.EventTextDelta, TextDelta: "checking..."},
			{Type: entity.EventToolCallStart, ToolCallID: "c1", ToolCallName: "echo"},
			{Type: entity.EventToolCallEnd, ToolCallID: "c1", ToolCallName: "echo", ToolCallInput: map[string]interface{}{}},
			{Type: entity.EventDone, StopReason: entity.StopToolUse},
		},
		[]entity.StreamEvent{
			{Type: entity.EventTextDelta, TextDelta: "done"},
			{Type: entity.EventDone, StopReason: entity.StopEndTurn},
		},
	)

	loop := newTestLoop(t, provider, router, 0)
	result, err := loop.ProcessUserInput(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if result != "checking...done" {
		t.Fatalf("expected concatenated turn text, got %q", result)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.calls)
	}

	all := loop.log.All()
	if len(all) != 4 { // user, assistant(tool call), tool result, assistant(final)
		t.Fatalf("expected 4 log messages, got %d: %+v", len(all), all)
	}
}

// S2 — the loop stops at max_turns and appends the limit note.
func TestAgentLoop_S2_MaxTurnsBound(t *testing.T) {
	reg := tool.NewInMemoryRegistry()
	_ = reg.Register(echoTool{})
	perm := NewPermissionEngine(ModeYolo, nil, nil)
	cp := NewCheckpointer(0, nil)
	router := NewToolRouter(reg, perm, cp, nil)

	alwaysToolCall := []entity.StreamEvent{
		{Type: entity.EventToolCallStart, ToolCallID: "c1", ToolCallName: "echo"},
		{Type: entity.EventToolCallEnd, ToolCallID: "c1", ToolCallName: "echo", ToolCallInput: map[string]interface{}{}},
		{Type: entity.EventDone, StopReason: entity.StopToolUse},
	}
	provider := &loopingProvider{turn: alwaysToolCall}

	loop := newTestLoop(t, provider, router, 3)
	result, err := loop.ProcessUserInput(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}
	if want := "[Reached maximum turns limit (3). Use /continue to resume.]"; result != want {
		t.Fatalf("expected limit note, got %q", result)
	}
	if provider.calls != 3 {
		t.Fatalf("expected exactly 3 provider calls (max_turns), got %d", provider.calls)
	}
}

type loopingProvider struct {
	fakeProvider
	turn  []entity.StreamEvent
	calls int
}

func (p *loopingProvider) StreamMessage(ctx context.Context, req CompletionRequest) (<-chan entity.StreamEvent, error) {
	p.calls++
	ch := make(chan entity.StreamEvent, len(p.turn))
	for _, ev := range p.turn {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestAgentLoop_ReentranceFails(t *testing.T) {
	reg := tool.NewInMemoryRegistry()
	perm := NewPermissionEngine(ModeYolo, nil, nil)
	cp := NewCheckpointer(0, nil)
	router := NewToolRouter(reg, perm, cp, nil)
	provider := scriptTurns([]entity.StreamEvent{{Type: entity.EventDone, StopReason: entity.StopEndTurn}})
	loop := newTestLoop(t, provider, router, 0)

	if !loop.sm.TryStart() {
		t.Fatal("expected first TryStart to succeed")
	}
	defer loop.sm.Finish()

	_, err := loop.ProcessUserInput(context.Background(), "hi")
	if err != entity.ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
