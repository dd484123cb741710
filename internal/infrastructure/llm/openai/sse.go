package openai

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

// toolCallAccumulator accumulates tool call fragments across SSE chunks.
type toolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
	started     bool
}

// ParseSSEStream reads a text/event-stream response and emits
// entity.StreamEvent values on out, closing both out and body when done.
//
// Three-tier termination protection:
//
//	L1: break on finish_reason (some APIs never send [DONE])
//	L2: 60s read idle timeout (detect stale connections)
//	L3: ctx cancellation
func ParseSSEStream(ctx context.Context, body io.ReadCloser, out chan<- entity.StreamEvent, logger *zap.Logger) {
	defer close(out)
	defer body.Close()

	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: body, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	toolCallMap := make(map[int]*toolCallAccumulator)
	var usage entity.Usage

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

		var chunk StreamChunkData
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("skip unparseable SSE chunk", zap.Error(err))
			continue
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !emit(entity.StreamEvent{Type: entity.EventTextDelta, TextDelta: delta.Content}) {
				return
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			acc, ok := toolCallMap[idx]
			if !ok {
				acc = &toolCallAccumulator{}
				toolCallMap[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			if !acc.started && acc.ID != "" && acc.Name != "" {
				acc.started = true
				if !emit(entity.StreamEvent{Type: entity.EventToolCallStart, ToolCallID: acc.ID, ToolCallName: acc.Name}) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				acc.ArgsBuilder.WriteString(tc.Function.Arguments)
				if acc.started {
					if !emit(entity.StreamEvent{Type: entity.EventToolCallDelta, ToolCallID: acc.ID, ArgsDelta: tc.Function.Arguments}) {
						return
					}
				}
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			hadToolCalls := false
			for i := 0; i < len(toolCallMap); i++ {
				acc, ok := toolCallMap[i]
				if !ok || !acc.started {
					continue
				}
				hadToolCalls = true
				input := map[string]interface{}{}
				if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
					if err := json.Unmarshal([]byte(argsStr), &input); err != nil {
						logger.Warn("failed to parse streamed tool call arguments", zap.String("tool", acc.Name), zap.Error(err))
						input = map[string]interface{}{}
					}
				}
				if !emit(entity.StreamEvent{Type: entity.EventToolCallEnd, ToolCallID: acc.ID, ToolCallName: acc.Name, ToolCallInput: input}) {
					return
				}
			}
			emit(entity.StreamEvent{Type: entity.EventUsage, Usage: &usage})
			stopReason := entity.CoerceStopReason(mapFinishReason(*choice.FinishReason), hadToolCalls)
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
	emit(entity.StreamEvent{Type: entity.EventDone, StopReason: entity.CoerceStopReason(entity.StopEndTurn, len(toolCallMap) > 0)})
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
