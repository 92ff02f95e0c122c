package pipeline

import (
	"context"
	"strings"
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is a single-shot prompt to the provider.
type LLMRequest struct {
	MaxTokens   int
	Temperature float64
	System      string
	Messages    []Message
}

// LLMResponse is the provider output along with token usage.
type LLMResponse struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// StopReason indicates why the LLM stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text concatenates all text blocks of the response.
func (r *LLMResponse) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func userPrompt(text string) []Message {
	return []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: text}}}}
}
