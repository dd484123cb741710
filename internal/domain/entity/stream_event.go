package entity

// StreamEventType discriminates the variants of StreamEvent emitted by a
// provider while a turn's model response is being consumed.
type StreamEventType string

const (
	EventTextDelta     StreamEventType = "text_delta"
	EventToolCallStart StreamEventType = "tool_call_start"
	EventToolCallDelta StreamEventType = "tool_call_delta"
	EventToolCallEnd   StreamEventType = "tool_call_end"
	EventUsage         StreamEventType = "usage"
	EventDone          StreamEventType = "done"
	EventError         StreamEventType = "error"
)

// StopReason is the normalized reason a provider ended its stream.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// CoerceStopReason enforces the one cross-provider normalization rule every
// provider implementation must apply: if the upstream reason mapped to
// StopEndTurn but the turn actually emitted at least one tool call, the
// model call ended by switching to tool use, not by a genuine end of turn,
// even if the provider's own finish-reason field disagrees.
func CoerceStopReason(reason StopReason, hadToolCalls bool) StopReason {
	if reason == StopEndTurn && hadToolCalls {
		return StopToolUse
	}
	return reason
}

// Usage reports token accounting for a completed model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CacheRead    int `json:"cache_read,omitempty"`
	CacheWrite   int `json:"cache_write,omitempty"`
}

// StreamEvent is the uniform event type every provider implementation
// emits, regardless of its underlying wire protocol. Only the fields
// relevant to Type are populated.
type StreamEvent struct {
	Type StreamEventType

	TextDelta string // EventTextDelta

	ToolCallID    string                 // EventToolCallStart, EventToolCallEnd
	ToolCallName  string                 // EventToolCallStart, EventToolCallEnd
	ToolCallInput map[string]interface{} // EventToolCallEnd (always non-nil)
	ArgsDelta     string                 // EventToolCallDelta (opaque JSON fragment)

	Usage *Usage // EventUsage

	StopReason StopReason // EventDone

	ErrMessage string // EventError
}

// RouterEventType discriminates the variants of RouterEvent, the event
// stream ToolRouter emits about tool execution (distinct from the
// provider's StreamEvent, per the outbound-channel design in the spec's
// design notes: the UI unions both into one channel).
type RouterEventType string

const (
	RouterEventToolStarted RouterEventType = "tool_started"
	RouterEventToolEnded   RouterEventType = "tool_ended"
)

// RouterEvent describes a single tool call's lifecycle as observed by
// the UI collaborator.
type RouterEvent struct {
	Type     RouterEventType
	ToolCall ToolCall
	Result   *ToolResult // set only for RouterEventToolEnded
}

// ToolResult is the result of executing one ToolCall.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}
