package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

const (
	summaryMaxTokens   = 1200
	summaryTemperature = 0.0
)

// CompactionTuning holds the thresholds Compact/NeedsCompaction are
// parameterized by, sourced from config.CompactionConfig.
type CompactionTuning struct {
	// TriggerRatio is the fraction of available budget at which
	// compaction kicks in.
	TriggerRatio float64

	// RecentWindowSize is how many of the most recent messages are always
	// kept verbatim, never summarized.
	RecentWindowSize int

	// MaxSummaryCandidates bounds how many of the older messages are fed
	// into one summarization call; beyond this the oldest are dropped
	// outright (noted in the summary) rather than growing the call
	// unboundedly.
	MaxSummaryCandidates int

	// SummaryModel is the model id used for the summarization call.
	// Empty means "use whatever model Compact is called with" — letting
	// the default model double as the summarizer.
	SummaryModel string
}

// DefaultCompactionTuning mirrors config.go's setDefaults values.
func DefaultCompactionTuning() CompactionTuning {
	return CompactionTuning{
		TriggerRatio:         0.85,
		RecentWindowSize:     10,
		MaxSummaryCandidates: 15,
	}
}

// ContextManager decides when a conversation has grown too large for the
// model's context window and rewrites it down to size: it summarizes the
// oldest non-pinned, non-recent messages with a cheap non-streaming model
// call and splices the result into the log via MessageLog.Summarize.
type ContextManager struct {
	provider ProviderStream
	counter  *ctxpkg.TokenCounter
	logger   *zap.Logger

	reservedOutputTokens int
	tuning               CompactionTuning
}

// NewContextManager builds a ContextManager. reservedOutputTokens is
// subtracted from the model's context window to leave room for the next
// response. A zero-value tuning is replaced with DefaultCompactionTuning.
func NewContextManager(provider ProviderStream, reservedOutputTokens int, tuning CompactionTuning, logger *zap.Logger) *ContextManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reservedOutputTokens <= 0 {
		reservedOutputTokens = 4096
	}
	if tuning.TriggerRatio <= 0 {
		tuning.TriggerRatio = DefaultCompactionTuning().TriggerRatio
	}
	if tuning.RecentWindowSize <= 0 {
		tuning.RecentWindowSize = DefaultCompactionTuning().RecentWindowSize
	}
	if tuning.MaxSummaryCandidates <= 0 {
		tuning.MaxSummaryCandidates = DefaultCompactionTuning().MaxSummaryCandidates
	}
	return &ContextManager{
		provider:             provider,
		counter:              ctxpkg.NewTokenCounter(),
		logger:               logger,
		reservedOutputTokens: reservedOutputTokens,
		tuning:               tuning,
	}
}

// AvailableBudget computes the token budget left for conversation
// messages once the reserved output, system prompt, and tool definitions
// are accounted for.
func (m *ContextManager) AvailableBudget(model, systemPrompt string, tools []tool.Definition) int {
	maxTokens := m.provider.MaxContextTokens(model)
	systemTokens := m.counter.Estimate(systemPrompt)
	toolTokens := m.estimateToolDefs(tools)

	available := maxTokens - m.reservedOutputTokens - systemTokens - toolTokens
	if available < 0 {
		available = 0
	}
	return available
}

// EnsureWithinBudget is AgentLoop's per-turn hook: it computes the
// available budget and, if the log has crossed the trigger ratio,
// compacts it. Returns immediately (no-op) otherwise.
func (m *ContextManager) EnsureWithinBudget(ctx context.Context, log *ctxpkg.MessageLog, model, systemPrompt string, tools []tool.Definition) error {
	available := m.AvailableBudget(model, systemPrompt, tools)
	if !m.NeedsCompaction(log, available) {
		return nil
	}
	return m.Compact(ctx, log, model, available)
}

func (m *ContextManager) estimateToolDefs(tools []tool.Definition) int {
	total := 0
	for _, t := range tools {
		total += m.counter.Estimate(t.Name) + m.counter.Estimate(t.Description) + 20
	}
	return total
}

// NeedsCompaction reports whether log's estimated token usage has crossed
// the trigger ratio of the available budget.
func (m *ContextManager) NeedsCompaction(log *ctxpkg.MessageLog, available int) bool {
	if available <= 0 {
		return false
	}
	trigger := int(float64(available) * m.tuning.TriggerRatio)
	return log.EstimateTokens() > trigger
}

// Compact rewrites log in place: the oldest non-pinned messages outside
// the most recent RecentWindowSize are replaced with one synthetic
// summary message. If summarization fails, a structural fallback summary
// is used instead of leaving the log unchanged. If the log is still over
// budget afterward, it falls back to MessageLog.Truncate.
func (m *ContextManager) Compact(ctx context.Context, log *ctxpkg.MessageLog, model string, available int) error {
	all := log.All()
	if len(all) <= m.tuning.RecentWindowSize {
		return nil
	}

	candidateEnd := len(all) - m.tuning.RecentWindowSize

	// Pinned messages are never candidates. In practice the only pin is
	// index 0 (set by MessageLog.AddUser on an empty log), so skipping
	// the leading pinned prefix keeps Summarize's contiguous-range splice
	// from ever absorbing a pinned message, without needing a
	// non-contiguous candidate selection.
	candidateStart := 0
	for candidateStart < candidateEnd && all[candidateStart].Pinned {
		candidateStart++
	}

	spliceStart := candidateStart
	dropped := 0
	if candidateEnd-candidateStart > m.tuning.MaxSummaryCandidates {
		dropped = candidateEnd - candidateStart - m.tuning.MaxSummaryCandidates
		candidateStart = candidateEnd - m.tuning.MaxSummaryCandidates
	}

	candidates := all[candidateStart:candidateEnd]
	if len(candidates) == 0 {
		return nil
	}

	summaryModel := model
	if m.tuning.SummaryModel != "" {
		summaryModel = m.tuning.SummaryModel
	}
	summary := m.summarize(ctx, candidates, summaryModel, dropped)

	if err := log.Summarize(spliceStart, candidateEnd-1, summary); err != nil {
		return fmt.Errorf("compact: splice summary: %w", err)
	}

	if available > 0 && log.EstimateTokens() > available {
		log.Truncate(available)
	}

	return nil
}

// summarize asks the model for a prose summary of candidates. On any
// failure it falls back to a deterministic structural summary so
// compaction never silently loses the fact that messages existed.
func (m *ContextManager) summarize(ctx context.Context, candidates []entity.Message, model string, dropped int) string {
	callCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	req := CompletionRequest{
		Model:           model,
		SystemPrompt:    summarizationSystemPrompt,
		Messages:        []entity.Message{entity.NewUserMessage(renderForSummary(candidates))},
		MaxOutputTokens: summaryMaxTokens,
		Temperature:     summaryTemperature,
	}

	resp, err := m.provider.CreateMessage(callCtx, req)
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		m.logger.Warn("summarization call failed, using structural fallback", zap.Error(err))
		return structuralSummary(candidates, dropped)
	}

	if dropped > 0 {
		return fmt.Sprintf("%s\n\n(%d earlier messages were dropped before this point to bound the summarization call.)", resp.Content, dropped)
	}
	return resp.Content
}

const summarizationSystemPrompt = `You summarize part of an ongoing coding-assistant conversation so it can ` +
	`be dropped from the context window without losing actionable state. Preserve: the ` +
	`task being worked on, what has been completed, what remains, key technical decisions ` +
	`and why, and any files that were created or modified. Omit restated code and ` +
	`intermediate debugging output. Be concise.`

func renderForSummary(messages []entity.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		text := msg.Content
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintf(&b, "[%s]: %s\n", msg.Role, text)
	}
	return b.String()
}

// structuralSummary builds a summary without calling the model, used when
// the summarization call itself fails.
func structuralSummary(messages []entity.Message, dropped int) string {
	var userCount, assistantCount, toolCount int
	for _, msg := range messages {
		switch msg.Role {
		case entity.RoleUser:
			userCount++
		case entity.RoleAssistant:
			assistantCount++
		case entity.RoleToolResult:
			toolCount++
		}
	}
	summary := fmt.Sprintf(
		"%d earlier messages were compacted without model-assisted summarization "+
			"(%d user, %d assistant, %d tool result).",
		len(messages), userCount, assistantCount, toolCount,
	)
	if dropped > 0 {
		summary += fmt.Sprintf(" %d additional messages before those were dropped entirely.", dropped)
	}
	return summary
}
