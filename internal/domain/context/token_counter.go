// Package context owns the conversation's message log and the token
// accounting used to decide when it must be compacted.
package context

import (
	"math"

	"github.com/coderunner/agentcore/internal/domain/entity"
)

// Per-message overhead constants used by estimate_messages. These model
// the framing tokens a real wire protocol spends per message/tool-call
// beyond raw content, the same way the teacher's tokenizer reserves a
// fixed overhead per turn rather than pretending content is free-standing.
const (
	perMessageOverhead    = 4
	perToolResultOverhead = 2
	perToolCallOverhead   = 10
	assistantPriming      = 3
	charsPerToken         = 4
)

// TokenCounter estimates token counts for strings and message arrays.
// Precision is not required; monotonicity (more content never yields
// fewer tokens) is the contract callers rely on.
type TokenCounter struct{}

// NewTokenCounter builds a TokenCounter. A BPE-backed implementation
// could be substituted behind the same two methods; the heuristic one
// is sufficient per the spec's design notes.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Estimate returns a fast, deterministic token estimate for a string.
func (c *TokenCounter) Estimate(text string) int {
	if text == "" {
		return 1
	}
	n := int(math.Ceil(float64(len(text)) / float64(charsPerToken)))
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessages sums per-message framing overhead plus content
// estimates across a full message array.
func (c *TokenCounter) EstimateMessages(messages []entity.Message) int {
	total := 0
	if len(messages) > 0 {
		total += assistantPriming
	}
	for _, m := range messages {
		total += perMessageOverhead
		total += c.Estimate(m.Content)
		switch m.Role {
		case entity.RoleToolResult:
			total += perToolResultOverhead
		case entity.RoleAssistant:
			for _, tc := range m.ToolCalls {
				total += perToolCallOverhead
				total += c.estimateToolCall(tc)
			}
		}
	}
	return total
}

func (c *TokenCounter) estimateToolCall(tc entity.ToolCall) int {
	total := c.Estimate(tc.Name)
	for k, v := range tc.Input {
		total += c.Estimate(k)
		if s, ok := v.(string); ok {
			total += c.Estimate(s)
		} else {
			total += 1
		}
	}
	return total
}
