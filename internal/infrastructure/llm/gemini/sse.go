package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/domain/entity"
)

// ParseSSEStream reads Gemini's streaming response format (SSE-like
// "data: {...}" lines, each a full GenerateContentResponse) and emits
// entity.StreamEvent values on out, closing both out and body when done.
func ParseSSEStream(ctx context.Context, body io.ReadCloser, out chan<- entity.StreamEvent, logger *zap.Logger) {
	defer close(out)
	defer body.Close()

	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: body, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var usage entity.Usage
	toolCallCount := 0

	emit := func(ev entity.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: "context cancelled"})
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			logger.Debug("skip unparseable Gemini SSE chunk", zap.Error(err))
			continue
		}

		if resp.UsageMetadata != nil {
			usage.InputTokens = resp.UsageMetadata.PromptTokenCount
			usage.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
		}

		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]

		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				if !emit(entity.StreamEvent{Type: entity.EventTextDelta, TextDelta: part.Text}) {
					return
				}
			}
			if part.FunctionCall != nil {
				id := toolCallRef(part.FunctionCall.Name, toolCallCount)
				toolCallCount++
				if !emit(entity.StreamEvent{Type: entity.EventToolCallStart, ToolCallID: id, ToolCallName: part.FunctionCall.Name}) {
					return
				}
				if !emit(entity.StreamEvent{Type: entity.EventToolCallEnd, ToolCallID: id, ToolCallName: part.FunctionCall.Name, ToolCallInput: part.FunctionCall.Args}) {
					return
				}
			}
		}

		if candidate.FinishReason != "" {
			emit(entity.StreamEvent{Type: entity.EventUsage, Usage: &usage})
			stopReason := entity.CoerceStopReason(mapFinishReason(candidate.FinishReason), toolCallCount > 0)
			emit(entity.StreamEvent{Type: entity.EventDone, StopReason: stopReason})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: fmt.Sprintf("SSE stream stalled: no data for %v", idleTimeout)})
			return
		}
		emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: fmt.Sprintf("SSE scan error: %v", err)})
		return
	}

	emit(entity.StreamEvent{Type: entity.EventUsage, Usage: &usage})
	emit(entity.StreamEvent{Type: entity.EventDone, StopReason: entity.CoerceStopReason(entity.StopEndTurn, toolCallCount > 0)})
}

// --- SSE idle timeout support ---

var errIdleTimeout = fmt.Errorf("SSE read idle timeout")

type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

func isIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SSE read idle timeout")
}
