package context

import (
	"sync"

	"github.com/coderunner/agentcore/internal/domain/entity"
)

// MessageLog owns the ordered conversation. Pins live on the message
// itself (Message.Pinned) rather than in a separate index set, per the
// spec's design-notes recommendation — this keeps truncate and
// summarize from ever needing to remap indices by hand.
type MessageLog struct {
	mu       sync.RWMutex
	messages []entity.Message
	counter  *TokenCounter
}

// NewMessageLog builds an empty log.
func NewMessageLog(counter *TokenCounter) *MessageLog {
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &MessageLog{counter: counter}
}

// AddUser appends a User message. If the log was empty, index 0 (this
// message) is pinned.
func (l *MessageLog) AddUser(content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := entity.NewUserMessage(content)
	if len(l.messages) == 0 {
		m.Pinned = true
	}
	l.messages = append(l.messages, m)
}

// AddAssistant appends an Assistant message.
func (l *MessageLog) AddAssistant(content string, toolCalls []entity.ToolCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, entity.NewAssistantMessage(content, toolCalls))
}

// AddToolResult appends a ToolResult message.
func (l *MessageLog) AddToolResult(toolUseID, content string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, entity.NewToolResultMessage(toolUseID, content, isError))
}

// All returns a copy of the current message slice.
func (l *MessageLog) All() []entity.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]entity.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Count returns the number of messages in the log.
func (l *MessageLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// LastAssistantContent returns the content of the most recent Assistant
// message, or nil if none exists.
func (l *MessageLog) LastAssistantContent() *string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == entity.RoleAssistant {
			c := l.messages[i].Content
			return &c
		}
	}
	return nil
}

// SetAll replaces the message list wholesale. Pins on messages that
// remain present are left as-is (they travel with the message value);
// index 0 of the new list, if any, is always re-pinned.
func (l *MessageLog) SetAll(messages []entity.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = make([]entity.Message, len(messages))
	copy(l.messages, messages)
	if len(l.messages) > 0 {
		l.messages[0].Pinned = true
	}
}

// Pin marks the message at index as pinned. Fails if index is out of
// bounds.
func (l *MessageLog) Pin(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.messages) {
		return entity.ErrIndexOutOfBounds
	}
	l.messages[index].Pinned = true
	return nil
}

// Truncate repeatedly removes the lowest-index non-pinned message until
// estimated tokens <= targetTokens, returning the removed messages in
// removal order. Returns early if no non-pinned messages remain.
func (l *MessageLog) Truncate(targetTokens int) []entity.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []entity.Message
	for l.counter.EstimateMessages(l.messages) > targetTokens {
		idx := -1
		for i, m := range l.messages {
			if !m.Pinned {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		removed = append(removed, l.messages[idx])
		l.messages = append(l.messages[:idx], l.messages[idx+1:]...)
	}
	return removed
}

// Summarize splices messages[start..=end] (inclusive) with a single
// synthetic user message containing the given summary text. Any pin
// within the spliced range collapses onto the replacement message.
func (l *MessageLog) Summarize(start, end int, summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start < 0 || end >= len(l.messages) || start > end {
		return entity.ErrIndexOutOfBounds
	}

	wasPinned := false
	for i := start; i <= end; i++ {
		if l.messages[i].Pinned {
			wasPinned = true
			break
		}
	}

	summaryMsg := entity.NewUserMessage("[Context summary]: " + summary)
	summaryMsg.Pinned = wasPinned

	rebuilt := make([]entity.Message, 0, len(l.messages)-(end-start))
	rebuilt = append(rebuilt, l.messages[:start]...)
	rebuilt = append(rebuilt, summaryMsg)
	rebuilt = append(rebuilt, l.messages[end+1:]...)
	l.messages = rebuilt
	return nil
}

// EstimateTokensIn returns the estimated token count of messages in the
// inclusive range [start, end].
func (l *MessageLog) EstimateTokensIn(start, end int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if end >= len(l.messages) {
		end = len(l.messages) - 1
	}
	if start > end {
		return 0
	}
	return l.counter.EstimateMessages(l.messages[start : end+1])
}

// EstimateTokens returns the estimated token count of the whole log.
func (l *MessageLog) EstimateTokens() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counter.EstimateMessages(l.messages)
}

// Clear empties the log.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// PinnedIndices returns the indices currently pinned, for diagnostics
// and tests.
func (l *MessageLog) PinnedIndices() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []int
	for i, m := range l.messages {
		if m.Pinned {
			out = append(out, i)
		}
	}
	return out
}
