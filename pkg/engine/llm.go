package engine

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// planner is the model call used for act-selector resolution and agent
// planning. A single-method interface keeps the loops testable without a
// live endpoint.
type planner interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openaiPlanner struct {
	client openai.Client
	model  string
}

func newOpenAIPlanner(opts Options) *openaiPlanner {
	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &openaiPlanner{
		client: openai.NewClient(clientOpts...),
		model:  opts.Model,
	}
}

func (p *openaiPlanner) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
