package service

import (
	"context"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

// CompletionRequest is a single model call: the full message history plus
// everything that shapes the response. Providers translate this into
// their own wire format.
type CompletionRequest struct {
	Model           string
	SystemPrompt    string
	Messages        []entity.Message
	Tools           []tool.Definition
	MaxOutputTokens int
	Temperature     float64

	// ThinkingBudget requests extended/reasoning thinking tokens from a
	// provider whose SupportsThinking() is true. Zero means no thinking
	// budget is requested; providers that don't support thinking ignore
	// this field entirely.
	ThinkingBudget int
}

// CompletionResponse is the accumulated result of one model call, whether
// it arrived in one shot (CreateMessage) or was reassembled from a stream
// (StreamMessage).
type CompletionResponse struct {
	Content    string
	ToolCalls  []entity.ToolCall
	StopReason entity.StopReason
	Usage      entity.Usage
}

// ProviderStream is the uniform interface AgentLoop and ContextManager use
// to talk to a language model, regardless of its wire protocol. Every
// concrete provider (Anthropic, OpenAI, Gemini, ...) implements this once.
type ProviderStream interface {
	// Name identifies the provider for logging and routing.
	Name() string

	// CreateMessage performs a single non-streaming call. Used for
	// ancillary calls — notably ContextManager's summarization request —
	// where intermediate token deltas are not useful.
	CreateMessage(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamMessage performs a streaming call. The returned channel emits
	// entity.StreamEvent values as they arrive and is closed when the
	// stream ends (successfully or with an EventError as the last value).
	// The caller must drain it.
	StreamMessage(ctx context.Context, req CompletionRequest) (<-chan entity.StreamEvent, error)

	// EstimateTokens gives the provider's own token estimate for text,
	// used only when it is cheaper/more accurate than TokenCounter's
	// heuristic; AgentLoop and ContextManager default to TokenCounter.
	EstimateTokens(text string) int

	// MaxContextTokens returns the context window size for model, or a
	// conservative default if the model is unrecognized.
	MaxContextTokens(model string) int

	// Capability flags, queried before a request is shaped: a provider
	// that doesn't support tools gets none attached, one that doesn't
	// support caching never receives cache-control hints, and so on.
	SupportsTools() bool
	SupportsThinking() bool
	SupportsCaching() bool
}
