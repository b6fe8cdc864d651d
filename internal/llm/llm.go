// Package llm wraps the Anthropic API behind a small caller interface and
// provides a retrying executor for structured-JSON tasks.
package llm

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Request is one model call. Temperature 0 is the right default for
// structured extraction; drafting tasks pass something higher.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Response carries the text plus token usage for accounting.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Caller is the single seam between the pipeline and the model provider.
type Caller interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Usage is a cumulative token tally across calls.
type Usage struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
}

// UsageRecorder accumulates usage across concurrent calls.
type UsageRecorder struct {
	mu    sync.Mutex
	usage Usage
}

func (r *UsageRecorder) Record(in, out int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.Calls++
	r.usage.InputTokens += in
	r.usage.OutputTokens += out
}

func (r *UsageRecorder) Snapshot() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicCaller implements Caller against the Anthropic messages API.
type AnthropicCaller struct {
	messages AnthropicMessager
	model    anthropic.Model
	usage    *UsageRecorder
}

func NewAnthropicCallerFromEnv(usage *UsageRecorder) (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := anthropic.Model(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")))
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model, usage: usage}, nil
}

func (a *AnthropicCaller) Generate(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.messages.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if a.usage != nil {
		a.usage.Record(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return Response{
		Text:         sb.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
