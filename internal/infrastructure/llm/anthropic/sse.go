package anthropic

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

// toolCallAccumulator tracks a tool_use block being streamed.
type toolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
	started     bool
}

// ParseSSEStream reads Anthropic's event-based SSE format and emits
// entity.StreamEvent values on out, closing it when the stream ends. It
// owns closing body and out; callers must not close either themselves.
//
// Anthropic SSE events:
//   - message_start         → initial message metadata
//   - content_block_start   → new content block (text, tool_use, thinking)
//   - content_block_delta   → incremental update to current block
//   - content_block_stop    → current block finished
//   - message_delta         → stop_reason + final usage
//   - message_stop          → stream complete
func ParseSSEStream(ctx context.Context, body io.ReadCloser, out chan<- entity.StreamEvent, logger *zap.Logger) {
	defer close(out)
	defer body.Close()

	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: body, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	toolCalls := make(map[int]*toolCallAccumulator)
	var usage entity.Usage
	var currentEventType string
	hadToolCalls := false

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

		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "message_start":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable message_start", zap.Error(err))
				continue
			}
			if evt.Message != nil {
				usage.InputTokens = evt.Message.Usage.InputTokens
				usage.OutputTokens = evt.Message.Usage.OutputTokens
			}

		case "content_block_start":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable content_block_start", zap.Error(err))
				continue
			}
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				acc := &toolCallAccumulator{ID: evt.ContentBlock.ID, Name: evt.ContentBlock.Name, started: true}
				toolCalls[evt.Index] = acc
				hadToolCalls = true
				if !emit(entity.StreamEvent{Type: entity.EventToolCallStart, ToolCallID: acc.ID, ToolCallName: acc.Name}) {
					return
				}
			}

		case "content_block_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable content_block_delta", zap.Error(err))
				continue
			}
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				if evt.Delta.Text != "" {
					if !emit(entity.StreamEvent{Type: entity.EventTextDelta, TextDelta: evt.Delta.Text}) {
						return
					}
				}
			case "input_json_delta":
				if acc, ok := toolCalls[evt.Index]; ok {
					acc.ArgsBuilder.WriteString(evt.Delta.PartialJSON)
					if !emit(entity.StreamEvent{Type: entity.EventToolCallDelta, ToolCallID: acc.ID, ArgsDelta: evt.Delta.PartialJSON}) {
						return
					}
				}
			case "thinking_delta":
				// Extended thinking content is not surfaced as a distinct
				// event type; the spec's union has no thinking variant.
			}

		case "content_block_stop":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			if acc, ok := toolCalls[evt.Index]; ok && acc.started {
				input := map[string]interface{}{}
				if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
					if err := json.Unmarshal([]byte(argsStr), &input); err != nil {
						logger.Warn("failed to parse tool call arguments", zap.String("tool", acc.Name), zap.Error(err))
						input = map[string]interface{}{}
					}
				}
				if !emit(entity.StreamEvent{Type: entity.EventToolCallEnd, ToolCallID: acc.ID, ToolCallName: acc.Name, ToolCallInput: input}) {
					return
				}
			}

		case "message_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable message_delta", zap.Error(err))
				continue
			}
			if evt.Usage != nil {
				usage.OutputTokens = evt.Usage.OutputTokens
				if evt.Usage.InputTokens > 0 {
					usage.InputTokens = evt.Usage.InputTokens
				}
			}
			if !emit(entity.StreamEvent{Type: entity.EventUsage, Usage: &usage}) {
				return
			}
			if evt.Delta != nil && evt.Delta.StopReason != "" {
				stopReason := entity.CoerceStopReason(mapStopReason(evt.Delta.StopReason), hadToolCalls)
				if !emit(entity.StreamEvent{Type: entity.EventDone, StopReason: stopReason}) {
					return
				}
				return
			}

		case "ping":
			// heartbeat, ignore

		default:
			logger.Debug("unknown Anthropic SSE event type", zap.String("type", currentEventType))
		}

		currentEventType = ""
	}

	if err := scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: fmt.Sprintf("SSE stream stalled: no data for %v", idleTimeout)})
			return
		}
		emit(entity.StreamEvent{Type: entity.EventError, ErrMessage: fmt.Sprintf("SSE scan error: %v", err)})
		return
	}

	// message_stop without a prior message_delta stop_reason (unexpected,
	// but emit Done rather than leaving the caller hanging).
	emit(entity.StreamEvent{Type: entity.EventDone, StopReason: entity.CoerceStopReason(entity.StopEndTurn, hadToolCalls)})
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
