// Package claude adapts the Anthropic Messages API to pipeline.Provider.
package claude

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// Client implements pipeline.Provider for Claude.
type Client struct {
	sdk    anthropic.Client
	model  string
	tracer trace.Tracer
}

// New creates a Claude client. Extra options are appended after the
// defaults, so tests can point it at a local server. Retries are disabled:
// callers fall back instead of retrying.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	return &Client{
		sdk:    anthropic.NewClient(append(base, opts...)...),
		model:  model,
		tracer: otel.Tracer("github.com/linnemanlabs/quietnews/internal/llm/claude"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Send issues one Messages API call.
func (c *Client) Send(ctx context.Context, req *pipeline.LLMRequest) (*pipeline.LLMResponse, error) {
	ctx, span := c.tracer.Start(ctx, "claude.Send", trace.WithAttributes(
		attribute.String("gen_ai.system", "anthropic"),
		attribute.String("gen_ai.request.model", c.model),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
		attribute.Float64("gen_ai.request.temperature", req.Temperature),
	))
	defer span.End()

	msg, err := c.sdk.Messages.New(ctx, c.toParams(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	resp := fromSDKResponse(msg)
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
		attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
	)
	return resp, nil
}

func (c *Client) toParams(req *pipeline.LLMRequest) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    toSDKMessages(req.Messages),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		p.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return p
}

func toSDKMessages(msgs []pipeline.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			if b.Type == "text" {
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(m.Role),
			Content: blocks,
		})
	}
	return out
}

func fromSDKResponse(msg *anthropic.Message) *pipeline.LLMResponse {
	resp := &pipeline.LLMResponse{
		StopReason: pipeline.StopReason(msg.StopReason),
		Usage: pipeline.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			resp.Content = append(resp.Content, pipeline.ContentBlock{Type: "text", Text: block.Text})
		}
	}
	return resp
}
