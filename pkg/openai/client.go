// Package openai wraps the OpenAI SDK behind a narrow chat interface, in the
// same shape as pkg/anthropic.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/resilience"
)

const defaultModel = "gpt-4o-mini"

// Client defines the OpenAI chat operations used by the engine.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is our own request type for chat completions.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int64
	Temperature  *float64
}

// ChatResponse is our own response type for chat completions.
type ChatResponse struct {
	ID               string
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates an OpenAI client backed by the SDK. SDK retries are
// disabled; callers decide whether a failed call is retried.
func NewClient(apiKey, model string, opts ...option.RequestOption) Client {
	if model == "" {
		model = defaultModel
	}
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(all...), model: model}
}

func (c *sdkClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []sdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, sdk.UserMessage(req.UserPrompt))

	params := sdk.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.NewStatusError("openai", apiErr.StatusCode, []byte(apiErr.Error()))
		}
		return nil, eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Wrap(resilience.ErrMalformedResponse, "openai: response has no choices")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		ID:               resp.ID,
		Model:            resp.Model,
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
