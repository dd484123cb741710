package entity

// Role identifies which of the three message variants a Message holds.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool"
)

// ToolCall is a single model-requested tool invocation. ID is
// provider-assigned; the runtime treats it as opaque and stable for the
// duration of a turn.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Message is a discriminated variant over the three message kinds the
// conversation log can hold. Only the fields relevant to Role are
// populated; callers should branch on Role, not on field presence.
//
// Pinned is a per-message flag rather than an externally tracked index
// set — splicing the log (truncate, compact) never needs to remap a
// separate collection, it just carries the flag with the message.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	ToolUseID string `json:"toolUseId,omitempty"`
	IsError   bool   `json:"isError,omitempty"`

	Pinned bool `json:"-"`
}

// NewUserMessage builds a User message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an Assistant message. toolCalls may be nil
// or empty when the turn produced no tool calls.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// NewToolResultMessage builds a ToolResult message.
func NewToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: RoleToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// HasToolCalls reports whether an assistant message carries tool calls.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
