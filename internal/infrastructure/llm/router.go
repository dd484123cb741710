package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/service"
)

// Router implements service.ProviderStream by routing to the best
// available registered provider for the requested model, failing over to
// the next candidate on error. It tracks per-provider latency and wraps
// each provider in its own circuit breaker.
type Router struct {
	providers []Provider
	stats     map[string]*providerStats
	breakers  map[string]*CircuitBreaker
	mu        sync.RWMutex
	logger    *zap.Logger
}

// providerStats tracks per-provider performance metrics.
type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// NewRouter creates a new LLM router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		stats:    make(map[string]*providerStats),
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger.With(zap.String("component", "llm-router")),
	}
}

// Compile-time interface check: Router implements service.ProviderStream.
var _ service.ProviderStream = (*Router)(nil)

// AddProvider adds a provider to the router. Providers are tried in
// insertion order for a given model.
func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.stats[p.Name()] = &providerStats{}
	r.breakers[p.Name()] = NewCircuitBreaker(5, 30*time.Second)
	r.logger.Info("LLM provider added",
		zap.String("name", p.Name()),
		zap.Strings("models", p.Models()),
	)
}

// Name identifies the router itself as the provider seen by AgentLoop.
func (r *Router) Name() string { return "router" }

func (r *Router) snapshot() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// candidates returns, in insertion order, the providers that support
// model, are reachable, and have a closed or half-open circuit.
func (r *Router) candidates(ctx context.Context, model string) []Provider {
	var out []Provider
	for _, p := range r.snapshot() {
		if !p.SupportsModel(model) {
			continue
		}
		if !p.IsAvailable(ctx) {
			r.logger.Debug("provider unavailable, skipping", zap.String("provider", p.Name()))
			continue
		}
		r.mu.RLock()
		cb, ok := r.breakers[p.Name()]
		r.mu.RUnlock()
		if ok && !cb.Allow() {
			r.logger.Debug("provider circuit open, skipping", zap.String("provider", p.Name()))
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Router) recordResult(name string, latency time.Duration, err error) {
	r.mu.Lock()
	if s, ok := r.stats[name]; ok {
		s.TotalCalls++
		s.LastLatency = latency
		if err != nil {
			s.FailureCount++
		}
	}
	cb := r.breakers[name]
	r.mu.Unlock()

	if cb == nil {
		return
	}
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
}

// CreateMessage routes a non-streaming call to the first available
// provider supporting req.Model, failing over to the next on error.
func (r *Router) CreateMessage(ctx context.Context, req service.CompletionRequest) (*service.CompletionResponse, error) {
	candidates := r.candidates(ctx, req.Model)
	var lastErr error

	for _, p := range candidates {
		start := time.Now()
		resp, err := p.CreateMessage(ctx, req)
		latency := time.Since(start)
		r.recordResult(p.Name(), latency, err)

		if err != nil {
			lastErr = err
			r.logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()), zap.Duration("latency", latency), zap.Error(err))
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed for model %q, last error: %w", req.Model, lastErr)
	}
	return nil, fmt.Errorf("no provider available for model %q", req.Model)
}

// StreamMessage routes a streaming call to the first available provider
// supporting req.Model. Per spec, a stream failure is surfaced to the
// caller rather than retried — failover here only applies to the initial
// StreamMessage call returning an error before any events are emitted.
func (r *Router) StreamMessage(ctx context.Context, req service.CompletionRequest) (<-chan entity.StreamEvent, error) {
	candidates := r.candidates(ctx, req.Model)
	var lastErr error

	for _, p := range candidates {
		start := time.Now()
		ch, err := p.StreamMessage(ctx, req)
		latency := time.Since(start)
		r.recordResult(p.Name(), latency, err)

		if err != nil {
			lastErr = err
			r.logger.Warn("streaming provider failed to open, trying next",
				zap.String("provider", p.Name()), zap.Duration("latency", latency), zap.Error(err))
			continue
		}
		return ch, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all streaming providers failed for model %q, last error: %w", req.Model, lastErr)
	}
	return nil, fmt.Errorf("no streaming provider available for model %q", req.Model)
}

// EstimateTokens defers to the first registered provider, since the
// router itself has no tokenizer of its own. AgentLoop/ContextManager
// default to TokenCounter's heuristic when this method is not meaningful.
func (r *Router) EstimateTokens(text string) int {
	if p := r.first(); p != nil {
		return p.EstimateTokens(text)
	}
	return len(text) / 4
}

// MaxContextTokens returns the context window of the first registered
// provider that supports model, or a conservative default.
func (r *Router) MaxContextTokens(model string) int {
	for _, p := range r.snapshot() {
		if p.SupportsModel(model) {
			return p.MaxContextTokens(model)
		}
	}
	return 128000
}

// SupportsTools reports whether any registered provider supports tools.
func (r *Router) SupportsTools() bool { return r.anySupports(Provider.SupportsTools) }

// SupportsThinking reports whether any registered provider supports
// extended thinking.
func (r *Router) SupportsThinking() bool { return r.anySupports(Provider.SupportsThinking) }

// SupportsCaching reports whether any registered provider supports
// prompt caching.
func (r *Router) SupportsCaching() bool { return r.anySupports(Provider.SupportsCaching) }

func (r *Router) anySupports(check func(Provider) bool) bool {
	for _, p := range r.snapshot() {
		if check(p) {
			return true
		}
	}
	return false
}

func (r *Router) first() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.providers) == 0 {
		return nil
	}
	return r.providers[0]
}

// ListProviders returns names, status, and performance stats of all registered providers.
func (r *Router) ListProviders(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ProviderStatus
	for _, p := range r.providers {
		ps := ProviderStatus{
			Name:      p.Name(),
			Models:    p.Models(),
			Available: p.IsAvailable(ctx),
		}
		if s, ok := r.stats[p.Name()]; ok {
			ps.TotalCalls = s.TotalCalls
			ps.FailureCount = s.FailureCount
			ps.LastLatencyMs = float64(s.LastLatency) / float64(time.Millisecond)
		}
		if cb, ok := r.breakers[p.Name()]; ok {
			ps.CircuitState = cb.State().String()
		}
		result = append(result, ps)
	}
	return result
}

// ProviderStatus describes a provider's current state and performance.
type ProviderStatus struct {
	Name          string   `json:"name"`
	Models        []string `json:"models"`
	Available     bool     `json:"available"`
	TotalCalls    int64    `json:"total_calls"`
	FailureCount  int64    `json:"failure_count"`
	LastLatencyMs float64  `json:"last_latency_ms"`
	CircuitState  string   `json:"circuit_state"`
}
