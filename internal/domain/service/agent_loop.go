package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

// DefaultMaxTurns is the loop's hard per-call turn limit.
const DefaultMaxTurns = 25

// maxOverflowCompactions bounds how many times one ProcessUserInput call
// will auto-compact and retry after a context-overflow error before giving
// up and surfacing the error.
const maxOverflowCompactions = 3

// AgentLoopConfig holds the tunables for one AgentLoop instance.
type AgentLoopConfig struct {
	Model           string
	SystemPrompt    string
	MaxTurns        int
	MaxOutputTokens int
	Temperature     float64

	// ThinkingBudget is passed through to CompletionRequest.ThinkingBudget
	// on every turn; providers that don't support thinking ignore it.
	ThinkingBudget int

	LoopWindowSize      int
	LoopDetectThreshold int
	LoopNameThreshold   int
}

// DefaultAgentLoopConfig returns production-ready defaults.
func DefaultAgentLoopConfig() AgentLoopConfig {
	return AgentLoopConfig{
		MaxTurns:            DefaultMaxTurns,
		MaxOutputTokens:     4096,
		Temperature:         0.7,
		LoopWindowSize:      10,
		LoopDetectThreshold: 5,
		LoopNameThreshold:   8,
	}
}

// AgentLoop is the turn-oriented ReAct loop: one public entrypoint,
// ProcessUserInput, driving a single conversation to completion against
// a provider and (optionally) a tool router. Re-entrance while a call is
// already running fails immediately — there is one active loop per
// process, per spec §5.
type AgentLoop struct {
	provider       ProviderStream
	router         *ToolRouter
	contextManager *ContextManager
	log            *ctxpkg.MessageLog
	config         AgentLoopConfig
	sm             *StateMachine
	loopDetector   *LoopDetector
	logger         *zap.Logger
	baseLogger     *zap.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	events     chan<- entity.StreamEvent
}

// NewAgentLoop builds an AgentLoop. router may be nil — tool calls then
// synthesize a misconfiguration error result instead of executing.
func NewAgentLoop(provider ProviderStream, router *ToolRouter, contextManager *ContextManager, log *ctxpkg.MessageLog, config AgentLoopConfig, logger *zap.Logger) *AgentLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if config.LoopWindowSize <= 0 {
		config.LoopWindowSize = 10
	}
	if config.LoopDetectThreshold <= 0 {
		config.LoopDetectThreshold = 5
	}
	if config.LoopNameThreshold <= 0 {
		config.LoopNameThreshold = 8
	}
	return &AgentLoop{
		provider:       provider,
		router:         router,
		contextManager: contextManager,
		log:            log,
		config:         config,
		sm:             NewStateMachine(logger),
		loopDetector:   NewLoopDetector(config.LoopWindowSize, config.LoopDetectThreshold, config.LoopNameThreshold, logger),
		logger:         logger,
		baseLogger:     logger,
	}
}

// SetEventSink wires a channel that receives the provider-originated
// StreamEvents as a turn is consumed (TextDelta, ToolCallStart,
// ToolCallEnd, Usage, Done, Error). A UI combines this with the ToolRouter's RouterEvent sink
// to observe the full turn.
func (a *AgentLoop) SetEventSink(ch chan<- entity.StreamEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = ch
}

// Abort requests cancellation of the turn currently in flight, if any. It
// is safe to call concurrently and is a no-op when no call is running.
func (a *AgentLoop) Abort() {
	a.mu.Lock()
	cancel := a.cancelFunc
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ProcessUserInput is the loop's single entrypoint: it appends the user
// message, then drives turns until the model stops requesting tools, the
// turn limit is reached, or the call is aborted, returning the
// accumulated response text. Re-entrance while already running returns
// entity.ErrAlreadyRunning without touching the log.
func (a *AgentLoop) ProcessUserInput(ctx context.Context, text string) (result string, outErr error) {
	if !a.sm.TryStart() {
		return "", entity.ErrAlreadyRunning
	}

	ctx = WithTraceID(ctx, "")
	a.logger = a.baseLogger.With(zap.String("trace_id", TraceIDFromContext(ctx)))

	turnCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelFunc = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.cancelFunc = nil
		a.mu.Unlock()
		cancel()
		a.sm.Finish()
		if r := recover(); r != nil {
			err := fmt.Errorf("agent loop panic: %v", r)
			a.logger.Error("agent loop panicked", zap.Any("panic", r))
			a.emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: err.Error()})
			outErr = err
		}
	}()

	a.log.AddUser(text)

	toolDefs := a.toolDefinitions()
	var responseBuffer strings.Builder
	overflowCompactions := 0

	for {
		if turnCtx.Err() != nil {
			break
		}
		if a.sm.TurnCount() >= a.config.MaxTurns {
			responseBuffer.WriteString(fmt.Sprintf("[Reached maximum turns limit (%d). Use /continue to resume.]", a.config.MaxTurns))
			break
		}
		a.sm.NextTurn()

		if a.contextManager != nil {
			if err := a.contextManager.EnsureWithinBudget(turnCtx, a.log, a.config.Model, a.config.SystemPrompt, toolDefs); err != nil {
				a.logger.Warn("context budget check failed, continuing with current log", zap.Error(err))
			}
		}

		req := CompletionRequest{
			Model:           a.config.Model,
			SystemPrompt:    a.config.SystemPrompt,
			Messages:        a.log.All(),
			Tools:           toolDefs,
			MaxOutputTokens: a.config.MaxOutputTokens,
			Temperature:     a.config.Temperature,
			ThinkingBudget:  a.config.ThinkingBudget,
		}

		turnText, pendingCalls, doneReceived, err := a.runTurn(turnCtx, req)
		if err != nil {
			// Reactive overflow detection: if the provider rejected the
			// request for being too large, compact the log and retry
			// rather than failing the whole turn, bounded to avoid
			// looping forever against a log that can't be shrunk further.
			if IsContextOverflowError(err) && overflowCompactions < maxOverflowCompactions && a.contextManager != nil {
				overflowCompactions++
				a.logger.Warn("context overflow detected, compacting and retrying",
					zap.Int("attempt", overflowCompactions), zap.Error(err))
				budget := a.contextManager.AvailableBudget(a.config.Model, a.config.SystemPrompt, toolDefs)
				if compactErr := a.contextManager.Compact(turnCtx, a.log, a.config.Model, budget); compactErr != nil {
					a.logger.Error("auto-compaction after overflow failed", zap.Error(compactErr))
				}
				continue
			}

			a.logger.Error("turn failed", zap.Error(err))
			a.emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: err.Error()})
			return "", err
		}
		if !doneReceived {
			// Cancelled before the stream reached Done: the partially
			// built assistant message is not appended, per spec.
			break
		}

		a.log.AddAssistant(turnText, pendingCalls)
		responseBuffer.WriteString(turnText)

		if len(pendingCalls) == 0 {
			a.emit(entity.StreamEvent{Type: entity.EventDone, StopReason: entity.StopEndTurn})
			break
		}

		a.dispatchToolCalls(turnCtx, pendingCalls)
		a.emit(entity.StreamEvent{Type: entity.EventDone, StopReason: entity.StopToolUse})
	}

	return responseBuffer.String(), nil
}

func (a *AgentLoop) toolDefinitions() []tool.Definition {
	if a.router == nil {
		return nil
	}
	return a.router.Definitions()
}

// dispatchToolCalls runs pendingCalls (via the router, or as synthesized
// misconfiguration errors if none is configured), appending a tool-result
// message per call and injecting any loop-detector reflection prompts.
func (a *AgentLoop) dispatchToolCalls(ctx context.Context, pendingCalls []entity.ToolCall) {
	if a.router == nil {
		for _, call := range pendingCalls {
			msg := fmt.Sprintf("No tool router is configured; cannot execute tool %q.", call.Name)
			a.log.AddToolResult(call.ID, msg, true)
		}
		return
	}

	var reflectionPrompts []string
	for _, call := range pendingCalls {
		if cat, ok := a.router.Category(call.Name); ok && cat != tool.CategoryReadonly {
			if p := a.loopDetector.RecordName(call.Name); p != "" {
				reflectionPrompts = append(reflectionPrompts, p)
			}
			if p := a.loopDetector.Record(call.Name, fingerprintInput(call.Input)); p != "" {
				reflectionPrompts = append(reflectionPrompts, p)
			}
		}
	}

	results := a.router.Execute(ctx, pendingCalls)
	for _, r := range results {
		a.log.AddToolResult(r.ToolUseID, r.Content, r.IsError)
	}

	for _, p := range reflectionPrompts {
		a.log.AddUser(p)
	}
}

// runTurn opens a provider stream and consumes it to completion,
// returning the turn's text, any tool calls requested, whether the
// stream reached Done (as opposed to exiting early on cancellation), and
// any error the stream itself reported.
func (a *AgentLoop) runTurn(ctx context.Context, req CompletionRequest) (turnText string, calls []entity.ToolCall, doneReceived bool, err error) {
	events, err := a.provider.StreamMessage(ctx, req)
	if err != nil {
		return "", nil, false, err
	}

	var textBuf strings.Builder

	for ev := range events {
		if ctx.Err() != nil {
			return "", nil, false, nil
		}

		switch ev.Type {
		case entity.EventTextDelta:
			textBuf.WriteString(ev.TextDelta)
			a.emit(ev)
		case entity.EventToolCallStart:
			a.emit(ev)
		case entity.EventToolCallDelta:
			// No-op at this layer: reassembly is the provider's job.
		case entity.EventToolCallEnd:
			calls = append(calls, entity.ToolCall{ID: ev.ToolCallID, Name: ev.ToolCallName, Input: ev.ToolCallInput})
			a.emit(ev)
		case entity.EventUsage:
			a.emit(ev)
		case entity.EventError:
			return "", nil, false, fmt.Errorf("provider stream error: %s", ev.ErrMessage)
		case entity.EventDone:
			doneReceived = true
		}
	}

	return textBuf.String(), calls, doneReceived, nil
}

func (a *AgentLoop) emit(ev entity.StreamEvent) {
	a.mu.Lock()
	ch := a.events
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		a.logger.Warn("event channel full, dropping event", zap.String("type", string(ev.Type)))
	}
}

func fingerprintInput(input map[string]interface{}) string {
	if len(input) == 0 {
		return ""
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(raw)
}
