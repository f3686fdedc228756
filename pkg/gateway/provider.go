// Package gateway mediates every model invocation behind a credit
// ledger: authenticate, estimate cost, check balance, call the
// provider, debit on success, and return the completion.
package gateway

import "context"

// Provider is a chat-completion backend. Every call reports the actual
// provider-currency cost it incurred so the gateway can debit credits
// at actual cost rather than estimate.
type Provider interface {
	Name() string
	Models() []string
	Enabled() bool
	SetEnabled(bool)

	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest mirrors a normalized chat-completion call.
type CompletionRequest struct {
	Model             string
	Messages          []Message
	System            string
	MaxTokens         int
	Temperature       float64
	ExpectedOutputTok int // conservative estimate used for pre-flight cost
}

// Message is one turn in a conversation.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// CompletionResponse is a normalized completion result.
type CompletionResponse struct {
	Content    string
	Usage      TokenUsage
	RawCostUSD float64
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u TokenUsage) Total() int { return u.PromptTokens + u.CompletionTokens }
