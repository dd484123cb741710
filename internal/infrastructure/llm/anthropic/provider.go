package anthropic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/service"
	llm "github.com/coderunner/agentcore/internal/infrastructure/llm"
)

const anthropicVersion = "2023-06-01"

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// contextWindows holds the known context sizes for models this provider
// recognizes; anything else falls back to a conservative default.
var contextWindows = map[string]int{
	"claude-opus-4":   200000,
	"claude-sonnet-4": 200000,
	"claude-haiku-4":  200000,
}

// Provider implements the Anthropic Messages API natively, satisfying
// service.ProviderStream.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an Anthropic API provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Provider{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		models:  cfg.Models,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "anthropic")),
	}
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string      { return p.name }
func (p *Provider) Models() []string  { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return true
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

func (p *Provider) EstimateTokens(text string) int {
	return len([]rune(text))/4 + 1
}

func (p *Provider) MaxContextTokens(model string) int {
	if n, ok := contextWindows[model]; ok {
		return n
	}
	return 200000
}

func (p *Provider) SupportsTools() bool    { return true }
func (p *Provider) SupportsThinking() bool { return true }
func (p *Provider) SupportsCaching() bool  { return true }

// CreateMessage performs a single non-streaming call, retried per the
// runtime's backoff policy (exponential, up to 3 retries; 401 fatal).
func (p *Provider) CreateMessage(ctx context.Context, req service.CompletionRequest) (*service.CompletionResponse, error) {
	var result *service.CompletionResponse

	err := service.CallWithRetry(ctx, service.DefaultMaxRetries, service.DefaultRetryBaseWait, p.logger, p.name, req.Model, nil, func() error {
		apiReq := p.buildAPIRequest(req)

		body, err := json.Marshal(apiReq)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		p.setHeaders(httpReq)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return &service.LLMError{
				Kind:       service.ClassifyStatusCode(resp.StatusCode),
				Message:    fmt.Sprintf("Anthropic API error %d: %s", resp.StatusCode, string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}

		parsed, err := p.parseAPIResponse(respBody)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StreamMessage opens an Anthropic SSE stream and translates it into
// entity.StreamEvent values on the returned channel. Per spec, streaming
// never retries: a failure to open is returned as an error, and a
// mid-stream error surfaces as an EventError before the channel closes.
// Any text/tool-call events emitted
// before the failure remain valid to the caller.
func (p *Provider) StreamMessage(ctx context.Context, req service.CompletionRequest) (<-chan entity.StreamEvent, error) {
	apiReq := p.buildAPIRequest(req)
	apiReq.Stream = true

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &service.LLMError{
			Kind:       service.ClassifyStatusCode(resp.StatusCode),
			Message:    fmt.Sprintf("Anthropic API error %d: %s", resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
		}
	}

	out := make(chan entity.StreamEvent, 16)
	go ParseSSEStream(ctx, resp.Body, out, p.logger)
	return out, nil
}

// --- Internal ---

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (p *Provider) buildAPIRequest(req service.CompletionRequest) *Request {
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	apiReq := &Request{
		Model:       model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = 8192 // Anthropic requires explicit max_tokens
	}
	if req.ThinkingBudget > 0 && req.ThinkingBudget < apiReq.MaxTokens {
		apiReq.Thinking = &ThinkingConfig{Type: "enabled", BudgetTokens: req.ThinkingBudget}
	}

	var messages []Message
	for _, msg := range req.Messages {
		switch msg.Role {
		case entity.RoleAssistant:
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Input,
				})
			}
			if len(blocks) > 0 {
				messages = append(messages, Message{Role: "assistant", Content: blocks})
			}

		case entity.RoleToolResult:
			messages = append(messages, Message{
				Role: "user",
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolUseID,
					Content:   msg.Content,
				}},
			})

		default: // entity.RoleUser
			messages = append(messages, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	apiReq.Messages = messages

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Name:        td.Name,
			Description: td.Description,
			InputSchema: ConvertSchema(td.InputSchema),
		})
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte) (*service.CompletionResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse Anthropic response: %w", err)
	}

	resp := &service.CompletionResponse{
		StopReason: mapStopReason(apiResp.StopReason),
		Usage: entity.Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}

	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	resp.StopReason = entity.CoerceStopReason(resp.StopReason, len(resp.ToolCalls) > 0)
	return resp, nil
}

func mapStopReason(reason string) entity.StopReason {
	switch reason {
	case "tool_use":
		return entity.StopToolUse
	case "max_tokens":
		return entity.StopMaxTokens
	default:
		return entity.StopEndTurn
	}
}
