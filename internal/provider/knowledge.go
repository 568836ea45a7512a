package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/evidence"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/internal/resilience"
	"github.com/sells-group/geo-visibility/pkg/anthropic"
	"github.com/sells-group/geo-visibility/pkg/openai"
)

const knowledgeSystemPrompt = "Answer from your own knowledge. Name specific companies and websites " +
	"when relevant. If you do not know, say so plainly."

// Completer is a plain text-in, text-out model call with no retrieval.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewKnowledge returns a recall-only adapter reporting as the given platform.
// A nil completer yields an unconfigured provider.
func NewKnowledge(name model.Platform, c Completer, opts ...Option) Provider {
	ask := func(ctx context.Context, query string) (*answer, error) {
		text, err := c.Complete(ctx, knowledgeSystemPrompt, query)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, eris.Wrapf(resilience.ErrMalformedResponse, "%s: empty completion", name)
		}
		return &answer{body: text}, nil
	}
	return newAdapter(name, evidence.FamilyRecall, c != nil, ask, opts)
}

type openAICompleter struct {
	client openai.Client
}

// OpenAICompleter backs a knowledge provider with the OpenAI chat API.
func OpenAICompleter(client openai.Client) Completer {
	if client == nil {
		return nil
	}
	return &openAICompleter{client: client}
}

func (o *openAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := 0.2
	resp, err := o.client.ChatCompletion(ctx, openai.ChatRequest{
		SystemPrompt: system,
		UserPrompt:   prompt,
		MaxTokens:    1024,
		Temperature:  &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

// AnthropicCompleter backs a knowledge provider with the Anthropic messages
// API. An empty model uses the client default.
func AnthropicCompleter(client anthropic.Client, model string) Completer {
	if client == nil {
		return nil
	}
	return &anthropicCompleter{client: client, model: model}
}

func (a *anthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := 0.2
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   1024,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
