package context

import (
	"testing"

	"github.com/coderunner/agentcore/internal/domain/entity"
)

func TestTokenCounter_Estimate(t *testing.T) {
	c := NewTokenCounter()

	if got := c.Estimate(""); got != 1 {
		t.Errorf("Estimate(\"\") = %d, want 1", got)
	}

	short := c.Estimate("abcd")
	long := c.Estimate("abcdefgh")
	if long <= short {
		t.Errorf("Estimate should be monotonic: short=%d long=%d", short, long)
	}
}

func TestTokenCounter_EstimateMessages_Monotonic(t *testing.T) {
	c := NewTokenCounter()

	a := []entity.Message{entity.NewUserMessage("hello")}
	b := append(a, entity.NewAssistantMessage("a longer response here", nil))

	if c.EstimateMessages(b) <= c.EstimateMessages(a) {
		t.Error("adding a message should not decrease the estimate")
	}
}

func TestTokenCounter_EstimateMessages_ToolOverhead(t *testing.T) {
	c := NewTokenCounter()

	withoutTool := []entity.Message{entity.NewAssistantMessage("ok", nil)}
	withTool := []entity.Message{entity.NewAssistantMessage("ok", []entity.ToolCall{
		{ID: "t1", Name: "read", Input: map[string]interface{}{"file_path": "x"}},
	})}

	if c.EstimateMessages(withTool) <= c.EstimateMessages(withoutTool) {
		t.Error("tool call framing should add to the estimate")
	}
}
