package service

import (
	"context"
	"testing"

	"github.com/coderunner/agentcore/internal/domain/entity"
	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
)

type fakeProvider struct {
	maxContext int
	summary    string
	failCreate bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateMessage(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if f.failCreate {
		return nil, &LLMError{Kind: ErrKindTransient, Message: "boom"}
	}
	return &CompletionResponse{Content: f.summary}, nil
}

func (f *fakeProvider) StreamMessage(ctx context.Context, req CompletionRequest) (<-chan entity.StreamEvent, error) {
	ch := make(chan entity.StreamEvent)
	close(ch)
	return ch, nil
}

func (f *fakeProvider) EstimateTokens(text string) int { return len(text) / 4 }
func (f *fakeProvider) MaxContextTokens(model string) int {
	if f.maxContext > 0 {
		return f.maxContext
	}
	return 100000
}
func (f *fakeProvider) SupportsTools() bool    { return true }
func (f *fakeProvider) SupportsThinking() bool { return false }
func (f *fakeProvider) SupportsCaching() bool  { return false }

// S5 — compaction preserves the pinned first message and the recent window.
func TestContextManager_S5_CompactionPreservesPinAndRecent(t *testing.T) {
	provider := &fakeProvider{summary: "summary of earlier work"}
	cm := NewContextManager(provider, 1000, CompactionTuning{}, nil)

	log := ctxpkg.NewMessageLog(nil)
	log.AddUser("the original task") // pinned at index 0

	for i := 0; i < 20; i++ {
		log.AddAssistant("intermediate response", nil)
		log.AddToolResult("t", "intermediate tool output", false)
	}

	before := log.Count()
	if err := cm.Compact(context.Background(), log, "fake-model", 0); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	all := log.All()
	if len(all) >= before {
		t.Fatalf("expected compaction to shrink the log, before=%d after=%d", before, len(all))
	}
	if !all[0].Pinned || all[0].Content != "the original task" {
		t.Fatalf("expected pinned first message preserved, got %+v", all[0])
	}

	tail := all[len(all)-DefaultCompactionTuning().RecentWindowSize:]
	for _, m := range tail {
		if m.Content == "[Context summary]: summary of earlier work" {
			t.Fatalf("recent window should not contain the summary message")
		}
	}
}

func TestContextManager_Compact_FallsBackOnSummarizeFailure(t *testing.T) {
	provider := &fakeProvider{failCreate: true}
	cm := NewContextManager(provider, 1000, CompactionTuning{}, nil)

	log := ctxpkg.NewMessageLog(nil)
	log.AddUser("task")
	for i := 0; i < 15; i++ {
		log.AddAssistant("response", nil)
	}

	if err := cm.Compact(context.Background(), log, "fake-model", 0); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	found := false
	for _, m := range log.All() {
		if m.Role == entity.RoleUser && m.Content != "" && m.Content != "task" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a structural fallback summary message in the log")
	}
}

func TestContextManager_NeedsCompaction(t *testing.T) {
	provider := &fakeProvider{maxContext: 1000}
	cm := NewContextManager(provider, 0, CompactionTuning{}, nil)

	log := ctxpkg.NewMessageLog(nil)
	log.AddUser("short")

	if cm.NeedsCompaction(log, 1000) {
		t.Fatalf("short log should not need compaction")
	}

	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'x'
	}
	log.AddAssistant(string(big), nil)

	if !cm.NeedsCompaction(log, 1000) {
		t.Fatalf("expected compaction to be needed once over trigger ratio")
	}
}
