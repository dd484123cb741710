package gemini

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
	llm.RegisterFactory("gemini", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

var contextWindows = map[string]int{
	"gemini-2.5-pro":   1048576,
	"gemini-2.5-flash": 1048576,
}

// Provider implements the Google Gemini API natively, satisfying
// service.ProviderStream.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Google Gemini API provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
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
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "gemini")),
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
	return 1048576
}

func (p *Provider) SupportsTools() bool    { return true }
func (p *Provider) SupportsThinking() bool { return true }
func (p *Provider) SupportsCaching() bool  { return false }

// CreateMessage performs a single non-streaming call, retried per the
// runtime's backoff policy.
func (p *Provider) CreateMessage(ctx context.Context, req service.CompletionRequest) (*service.CompletionResponse, error) {
	var result *service.CompletionResponse

	err := service.CallWithRetry(ctx, service.DefaultMaxRetries, service.DefaultRetryBaseWait, p.logger, p.name, req.Model, nil, func() error {
		apiReq := p.buildAPIRequest(req)
		model := p.stripPrefix(req.Model)

		body, err := json.Marshal(apiReq)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

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
				Message:    fmt.Sprintf("Gemini API error %d: %s", resp.StatusCode, string(respBody)),
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

// StreamMessage opens a Gemini streaming call and translates it into
// entity.StreamEvent values on the returned channel. Never retries.
func (p *Provider) StreamMessage(ctx context.Context, req service.CompletionRequest) (<-chan entity.StreamEvent, error) {
	apiReq := p.buildAPIRequest(req)
	model := p.stripPrefix(req.Model)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
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
			Message:    fmt.Sprintf("Gemini API error %d: %s", resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
		}
	}

	out := make(chan entity.StreamEvent, 16)
	go ParseSSEStream(ctx, resp.Body, out, p.logger)
	return out, nil
}

// --- Internal ---

func (p *Provider) stripPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

// toolCallRef encodes a function name and call index into the synthetic
// ID Gemini's functionCall has no native ID for; functionResponseName
// recovers the name half for routing a tool result back.
func toolCallRef(name string, index int) string {
	return fmt.Sprintf("%s#%d", name, index)
}

func functionResponseName(toolUseID string) string {
	if idx := strings.LastIndex(toolUseID, "#"); idx >= 0 {
		return toolUseID[:idx]
	}
	return toolUseID
}

func (p *Provider) buildAPIRequest(req service.CompletionRequest) *Request {
	apiReq := &Request{
		GenerationConfig: &GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.ThinkingBudget > 0 {
		apiReq.GenerationConfig.ThinkingConfig = &ThinkingConfig{ThinkingBudget: req.ThinkingBudget}
	}

	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemPrompt}}}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case entity.RoleAssistant:
			content := Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, Part{
					FunctionCall: &FunctionCall{Name: tc.Name, Args: tc.Input},
				})
			}
			if len(content.Parts) > 0 {
				apiReq.Contents = append(apiReq.Contents, content)
			}

		case entity.RoleToolResult:
			apiReq.Contents = append(apiReq.Contents, Content{
				Role: "user",
				Parts: []Part{{
					FunctionResponse: &FunctionResponse{
						Name:     functionResponseName(msg.ToolUseID),
						Response: map[string]interface{}{"output": msg.Content},
					},
				}},
			})

		default: // entity.RoleUser
			apiReq.Contents = append(apiReq.Contents, Content{
				Role:  "user",
				Parts: []Part{{Text: msg.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		var decls []FunctionDeclarationSpec
		for _, td := range req.Tools {
			decls = append(decls, FunctionDeclarationSpec{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  ConvertSchema(td.InputSchema),
			})
		}
		apiReq.Tools = []ToolDeclaration{{FunctionDeclarations: decls}}
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte) (*service.CompletionResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse Gemini response: %w", err)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty Gemini response: no candidates")
	}

	candidate := apiResp.Candidates[0]
	resp := &service.CompletionResponse{StopReason: mapFinishReason(candidate.FinishReason)}
	if apiResp.UsageMetadata != nil {
		resp.Usage = entity.Usage{
			InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
		}
	}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			resp.Content += part.Text
		}
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{
				ID:    toolCallRef(part.FunctionCall.Name, len(resp.ToolCalls)),
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}

	resp.StopReason = entity.CoerceStopReason(resp.StopReason, len(resp.ToolCalls) > 0)
	return resp, nil
}

func mapFinishReason(reason string) entity.StopReason {
	switch reason {
	case "MAX_TOKENS":
		return entity.StopMaxTokens
	default:
		return entity.StopEndTurn
	}
}
