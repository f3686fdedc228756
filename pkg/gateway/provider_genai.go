package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/genai"
)

// GenAIConfig configures a Gemini-backed provider.
type GenAIConfig struct {
	APIKey   string
	Model    string
	Thinking string // NONE, LOW, NORMAL, HIGH (case-insensitive)
	Timeout  time.Duration
	// Route prices live on RoutingTable entries (Route.PriceInPer1k,
	// Route.PriceOutPer1k); the provider itself reports cost per call.
}

// GenAIProvider adapts the Gemini SDK to the Provider interface,
// generalizing the summarization-only client into a full completion
// provider with per-call cost reporting.
type GenAIProvider struct {
	client   *genai.Client
	model    string
	thinking string
	timeout  time.Duration
	enabled  atomic.Bool
}

// NewGenAIProvider constructs a provider, or returns an error if no
// API key is configured.
func NewGenAIProvider(ctx context.Context, cfg GenAIConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: genai provider requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if cfg.Thinking == "" {
		cfg.Thinking = "NORMAL"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: creating genai client: %w", err)
	}

	p := &GenAIProvider{client: client, model: cfg.Model, thinking: cfg.Thinking, timeout: cfg.Timeout}
	p.enabled.Store(true)
	return p, nil
}

func (p *GenAIProvider) Name() string      { return "genai" }
func (p *GenAIProvider) Models() []string  { return []string{p.model} }
func (p *GenAIProvider) Enabled() bool     { return p.enabled.Load() }
func (p *GenAIProvider) SetEnabled(v bool) { p.enabled.Store(v) }

func thinkingLevel(level string) genai.ThinkingLevel {
	switch strings.ToUpper(level) {
	case "NONE":
		return genai.ThinkingLevelMinimal
	case "LOW":
		return genai.ThinkingLevelLow
	case "HIGH":
		return genai.ThinkingLevelHigh
	default:
		return genai.ThinkingLevelMedium
	}
}

// Complete issues a chat completion, flattening the gateway's
// role-tagged messages into a single prompt since the underlying SDK
// call used here is single-turn.
func (p *GenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := req.System
	for _, m := range req.Messages {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += m.Role + ": " + m.Content
	}

	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingLevel: thinkingLevel(p.thinking)},
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), config)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("gateway: genai generate: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("gateway: genai returned an empty response")
	}

	var text string
	if result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}
	}
	if text == "" {
		return CompletionResponse{}, fmt.Errorf("gateway: genai response contained no text")
	}

	usage := TokenUsage{PromptTokens: len(prompt) / 4, CompletionTokens: len(text) / 4}
	if result.UsageMetadata != nil {
		usage.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return CompletionResponse{
		Content:    text,
		Usage:      usage,
		RawCostUSD: estimateGenAICostUSD(usage),
	}, nil
}

// estimateGenAICostUSD approximates provider-reported cost from token
// counts using Gemini Flash's published per-1k-token pricing; a real
// deployment would read this from the provider's billing response.
func estimateGenAICostUSD(u TokenUsage) float64 {
	const priceInPer1k = 0.000075
	const priceOutPer1k = 0.0003
	return float64(u.PromptTokens)/1000*priceInPer1k + float64(u.CompletionTokens)/1000*priceOutPer1k
}
