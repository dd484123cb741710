package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
	"github.com/coderunner/agentcore/pkg/safego"
)

// RequestPermissionFunc is the injected callback ToolRouter invokes when
// the permission engine returns Ask. It must resolve to Allowed or
// Denied; an absent callback is treated as Denied.
type RequestPermissionFunc func(ctx context.Context, call entity.ToolCall) Decision

// ToolRouter is the per-turn tool execution scheduler: it validates
// every call against the permission engine, snapshots files before
// mutation, runs readonly calls in parallel and everything else
// sequentially, and normalizes oversized outputs.
type ToolRouter struct {
	registry     tool.Registry
	permission   *PermissionEngine
	checkpointer *Checkpointer
	counter      *ctxpkg.TokenCounter
	logger       *zap.Logger

	mu                sync.RWMutex
	requestPermission RequestPermissionFunc
	events            chan<- entity.RouterEvent
}

// NewToolRouter builds a ToolRouter.
func NewToolRouter(registry tool.Registry, permission *PermissionEngine, checkpointer *Checkpointer, logger *zap.Logger) *ToolRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRouter{
		registry:     registry,
		permission:   permission,
		checkpointer: checkpointer,
		counter:      ctxpkg.NewTokenCounter(),
		logger:       logger,
	}
}

// Definitions returns the tool definitions of every registered tool, for
// attaching to a provider request.
func (r *ToolRouter) Definitions() []tool.Definition {
	return r.registry.Definitions()
}

// Category reports the category of a registered tool, if any.
func (r *ToolRouter) Category(name string) (tool.Category, bool) {
	t, ok := r.registry.Get(name)
	if !ok {
		return "", false
	}
	return t.Category(), true
}

// SetRequestPermissionFunc injects the Ask-resolution callback.
func (r *ToolRouter) SetRequestPermissionFunc(fn RequestPermissionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestPermission = fn
}

// SetEventSink wires an optional channel that receives ToolStarted /
// ToolEnded RouterEvents as calls execute — the UI-facing collaborator
// the spec's design notes describe.
func (r *ToolRouter) SetEventSink(ch chan<- entity.RouterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = ch
}

type routedCall struct {
	call     entity.ToolCall
	category tool.Category
	tool     tool.Tool
	result   *entity.ToolResult // set when pre-check already resolved this call
}

// Execute runs a batch of tool calls from one assistant turn and
// produces one ToolResult per call, in original call order.
func (r *ToolRouter) Execute(ctx context.Context, calls []entity.ToolCall) []entity.ToolResult {
	planned := r.preCheck(ctx, calls)

	var parallel, sequential []int
	for i, p := range planned {
		if p.result != nil {
			continue
		}
		if p.category == tool.CategoryReadonly {
			parallel = append(parallel, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	results := make(map[string]entity.ToolResult, len(calls))

	r.runParallel(ctx, planned, parallel, results)
	r.runSequential(ctx, planned, sequential, results)

	for _, p := range planned {
		if p.result != nil {
			results[p.call.ID] = *p.result
		}
	}

	out := make([]entity.ToolResult, len(calls))
	for i, c := range calls {
		if res, ok := results[c.ID]; ok {
			res.Content = normalizeOutput(res.Content, r.counter)
			out[i] = res
		} else {
			out[i] = entity.ToolResult{ToolUseID: c.ID, Content: "no result produced for this tool call", IsError: true}
		}
	}
	return out
}

// preCheck resolves each tool and permission decision in order, either
// producing a precomputed result or tagging the call for execution.
func (r *ToolRouter) preCheck(ctx context.Context, calls []entity.ToolCall) []routedCall {
	r.mu.RLock()
	requestFn := r.requestPermission
	r.mu.RUnlock()

	planned := make([]routedCall, len(calls))
	for i, call := range calls {
		t, ok := r.registry.Get(call.Name)
		if !ok {
			res := entity.ToolResult{ToolUseID: call.ID, Content: fmt.Sprintf("Unknown tool: %s", call.Name), IsError: true}
			planned[i] = routedCall{call: call, result: &res}
			continue
		}

		category := t.Category()
		decision := r.permission.Check(call, category)

		if decision == Ask {
			if requestFn == nil {
				decision = Denied
			} else {
				decision = requestFn(ctx, call)
			}
		}

		if decision != Allowed {
			res := entity.ToolResult{ToolUseID: call.ID, Content: fmt.Sprintf("Permission denied for tool %s", call.Name), IsError: true}
			planned[i] = routedCall{call: call, category: category, tool: t, result: &res}
			continue
		}

		planned[i] = routedCall{call: call, category: category, tool: t}
	}
	return planned
}

func (r *ToolRouter) runParallel(ctx context.Context, planned []routedCall, idxs []int, results map[string]entity.ToolResult) {
	if len(idxs) == 0 {
		return
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, i := range idxs {
		i := i
		wg.Add(1)
		safego.Go(r.logger, "tool-router-parallel", func() {
			defer wg.Done()
			res := r.runOne(ctx, planned[i])
			mu.Lock()
			results[planned[i].call.ID] = res
			mu.Unlock()
		})
	}
	wg.Wait()
}

func (r *ToolRouter) runSequential(ctx context.Context, planned []routedCall, idxs []int, results map[string]entity.ToolResult) {
	for _, i := range idxs {
		p := planned[i]
		if p.category == tool.CategoryWrite || p.category == tool.CategoryExecute {
			if path, ok := p.call.Input["file_path"].(string); ok && path != "" {
				r.checkpointer.Snapshot(path)
			}
		}
		results[p.call.ID] = r.runOne(ctx, p)
	}
}

func (r *ToolRouter) runOne(ctx context.Context, p routedCall) entity.ToolResult {
	r.emit(entity.RouterEvent{Type: entity.RouterEventToolStarted, ToolCall: p.call})

	result, err := func() (res tool.Result, execErr error) {
		defer func() {
			if rec := recover(); rec != nil {
				execErr = fmt.Errorf("tool %s panicked: %v", p.call.Name, rec)
			}
		}()
		return p.tool.Execute(ctx, p.call.Input)
	}()

	var out entity.ToolResult
	if err != nil {
		out = entity.ToolResult{ToolUseID: p.call.ID, Content: err.Error(), IsError: true}
	} else {
		out = entity.ToolResult{ToolUseID: p.call.ID, Content: result.Content, IsError: result.IsError}
	}

	r.emit(entity.RouterEvent{Type: entity.RouterEventToolEnded, ToolCall: p.call, Result: &out})
	return out
}

func (r *ToolRouter) emit(ev entity.RouterEvent) {
	r.mu.RLock()
	ch := r.events
	r.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		r.logger.Warn("router event channel full, dropping event", zap.String("type", string(ev.Type)))
	}
}
