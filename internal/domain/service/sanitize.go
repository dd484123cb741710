package service

import (
	"fmt"
	"strings"

	"github.com/coderunner/agentcore/internal/domain/context"
)

const (
	maxLineChars = 2000

	lowTierTokens  = 500
	highTierTokens = 2000
	charsPerToken  = 4
)

// normalizeOutput applies the per-result normalization §4.7 specifies:
// first per-line truncation for pathologically long single lines, then a
// size tier (verbatim / head-truncate / head-tail) keyed off estimated
// token count. It is idempotent: an already-normalized string carries
// one of the truncation markers below and is returned unchanged.
func normalizeOutput(content string, counter *context.TokenCounter) string {
	if strings.Contains(content, "[truncated") || strings.Contains(content, "[skipped") {
		return content
	}

	content = truncateLongLines(content)

	lowChars := lowTierTokens * charsPerToken
	highChars := highTierTokens * charsPerToken

	if len(content) <= lowChars {
		return content
	}

	tokens := counter.Estimate(content)
	if tokens <= highTierTokens {
		return headTruncate(content, highChars)
	}

	return headTail(content, lowChars)
}

func truncateLongLines(content string) string {
	if !strings.Contains(content, "\n") && len(content) <= maxLineChars {
		return content
	}
	lines := strings.Split(content, "\n")
	changed := false
	for i, line := range lines {
		if len(line) > maxLineChars {
			lines[i] = line[:maxLineChars] + " [truncated]"
			changed = true
		}
	}
	if !changed {
		return content
	}
	return strings.Join(lines, "\n")
}

// headTruncate keeps the first budget-worth of characters (minus room
// for the marker, so the result's length never exceeds budget and a
// second pass sees it as already-normalized). Content already within
// budget is returned unchanged.
func headTruncate(content string, budget int) string {
	if len(content) <= budget {
		return content
	}
	marker := fmt.Sprintf("... [truncated %d characters] ...", len(content)-budget)
	headBudget := budget - len(marker) - 1
	if headBudget < 0 {
		headBudget = 0
	}
	breakAt := headBudget
	if idx := strings.LastIndex(content[:headBudget], "\n"); idx > headBudget*3/4 {
		breakAt = idx
	}
	return content[:breakAt] + "\n" + marker
}

// headTail keeps ~halfBudget characters from the start and the end,
// eliding the middle.
func headTail(content string, halfBudget int) string {
	head := content[:halfBudget]
	tail := content[len(content)-halfBudget:]
	marker := fmt.Sprintf("... [skipped %d characters] ...", len(content)-2*halfBudget)
	return head + "\n" + marker + "\n" + tail
}
