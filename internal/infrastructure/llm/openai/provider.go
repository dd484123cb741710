package openai

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

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

var contextWindows = map[string]int{
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-4.1":     1047576,
	"o3":          200000,
}

// Provider is a Go-native OpenAI-compatible HTTP client, satisfying
// service.ProviderStream. Compatible with: OpenAI, Bailian (Qwen),
// MiniMax, DeepSeek, Ollama, vLLM, etc.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Go-native OpenAI-compatible LLM provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
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
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "openai")),
	}
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

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
	return 128000
}

func (p *Provider) SupportsTools() bool    { return true }
func (p *Provider) SupportsThinking() bool { return false }
func (p *Provider) SupportsCaching() bool  { return false }

// CreateMessage performs a single non-streaming call, retried per the
// runtime's backoff policy.
func (p *Provider) CreateMessage(ctx context.Context, req service.CompletionRequest) (*service.CompletionResponse, error) {
	var result *service.CompletionResponse

	err := service.CallWithRetry(ctx, service.DefaultMaxRetries, service.DefaultRetryBaseWait, p.logger, p.name, req.Model, nil, func() error {
		apiReq := p.buildAPIRequest(req)

		body, err := json.Marshal(apiReq)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
				Message:    fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)),
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

// StreamMessage opens an OpenAI-compatible SSE stream and translates it
// into entity.StreamEvent values on the returned channel. Never retries.
func (p *Provider) StreamMessage(ctx context.Context, req service.CompletionRequest) (<-chan entity.StreamEvent, error) {
	apiReq := p.buildAPIRequest(req)
	streamBody := StreamRequest{
		Request:       apiReq,
		Stream:        true,
		StreamOptions: map[string]interface{}{"include_usage": true},
	}

	body, err := json.Marshal(streamBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
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
			Message:    fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
		}
	}

	out := make(chan entity.StreamEvent, 16)
	go ParseSSEStream(ctx, resp.Body, out, p.logger)
	return out, nil
}

// --- Internal conversion methods ---

func (p *Provider) buildAPIRequest(req service.CompletionRequest) *Request {
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	apiReq := &Request{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}

	if req.SystemPrompt != "" {
		apiReq.Messages = append(apiReq.Messages, Message{Role: "system", Content: req.SystemPrompt})
	}

	for _, msg := range req.Messages {
		apiMsg := Message{Content: msg.Content}
		switch msg.Role {
		case entity.RoleAssistant:
			apiMsg.Role = "assistant"
			for _, tc := range msg.ToolCalls {
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: ToolCallFunc{
						Name:      tc.Name,
						Arguments: MarshalToolCallArgs(tc.Input),
					},
				})
			}
		case entity.RoleToolResult:
			apiMsg.Role = "tool"
			apiMsg.ToolCallID = msg.ToolUseID
		default:
			apiMsg.Role = "user"
		}
		apiReq.Messages = append(apiReq.Messages, apiMsg)
	}

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  ConvertSchema(td.InputSchema),
			},
		})
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte) (*service.CompletionResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices")
	}

	choice := apiResp.Choices[0]
	resp := &service.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage: entity.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: args})
	}

	resp.StopReason = entity.CoerceStopReason(resp.StopReason, len(resp.ToolCalls) > 0)
	return resp, nil
}

func mapFinishReason(reason string) entity.StopReason {
	switch reason {
	case "tool_calls":
		return entity.StopToolUse
	case "length":
		return entity.StopMaxTokens
	default:
		return entity.StopEndTurn
	}
}
