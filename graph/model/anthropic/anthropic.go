// Package anthropic adapts the Anthropic Messages API to the model.Caller
// interface.
package anthropic

import (
	"context"
	"errors"
	"strings"

	ant "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/contentflow-go/graph/model"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 4096
)

// Caller implements model.Caller against the Anthropic API.
type Caller struct {
	modelName string
	maxTokens int64
	client    messageClient
}

// messageClient isolates the SDK call so tests can substitute a fake.
type messageClient interface {
	create(ctx context.Context, modelName string, maxTokens int64, system, user string) (string, error)
}

// NewCaller creates an Anthropic-backed Caller. An empty modelName selects
// a small default model.
func NewCaller(apiKey, modelName string, opts ...option.RequestOption) *Caller {
	if modelName == "" {
		modelName = defaultModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Caller{
		modelName: modelName,
		maxTokens: defaultMaxTokens,
		client:    &sdkClient{opts: reqOpts},
	}
}

// Invoke implements model.Caller.
func (c *Caller) Invoke(ctx context.Context, p model.Prompt) (model.Output, error) {
	system := p.System
	if p.Shape == model.ShapeJSON {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single JSON object and nothing else."
	}

	text, err := c.client.create(ctx, c.modelName, c.maxTokens, system, p.User)
	if err != nil {
		return model.Output{}, classify(err)
	}

	out := model.Output{Text: text}
	if p.Shape == model.ShapeJSON {
		raw, err := model.ExtractJSON(text)
		if err != nil {
			return model.Output{}, err
		}
		out = model.Output{JSON: raw}
	}

	if err := model.ValidateShape(p.Shape, out); err != nil {
		return model.Output{}, err
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(model.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return errors.Join(model.ErrUnavailable, err)
	}
}

// sdkClient is the production messageClient backed by anthropic-sdk-go.
type sdkClient struct {
	opts []option.RequestOption
}

func (s *sdkClient) create(ctx context.Context, modelName string, maxTokens int64, system, user string) (string, error) {
	client := ant.NewClient(s.opts...)

	params := ant.MessageNewParams{
		Model:     ant.Model(modelName),
		MaxTokens: maxTokens,
		Messages: []ant.MessageParam{
			ant.NewUserMessage(ant.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []ant.TextBlockParam{{Text: system}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: empty text content")
	}
	return sb.String(), nil
}
