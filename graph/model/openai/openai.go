// Package openai adapts OpenAI chat completions to the model.Caller
// interface.
package openai

import (
	"context"
	"errors"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/contentflow-go/graph/model"
)

const defaultModel = "gpt-4o-mini"

// Caller implements model.Caller against the OpenAI API.
//
//	caller := openai.NewCaller(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := caller.Invoke(ctx, model.Prompt{User: "...", Shape: model.ShapeText})
type Caller struct {
	modelName string
	client    completionClient
}

// completionClient isolates the SDK call so tests can substitute a fake.
type completionClient interface {
	complete(ctx context.Context, modelName, system, user string) (string, error)
}

// NewCaller creates an OpenAI-backed Caller. An empty modelName selects a
// small default model.
func NewCaller(apiKey, modelName string, opts ...option.RequestOption) *Caller {
	if modelName == "" {
		modelName = defaultModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Caller{
		modelName: modelName,
		client:    &sdkClient{opts: reqOpts},
	}
}

// Invoke implements model.Caller.
func (c *Caller) Invoke(ctx context.Context, p model.Prompt) (model.Output, error) {
	system := p.System
	if p.Shape == model.ShapeJSON {
		system = joinSystem(system, "Respond with a single JSON object and nothing else.")
	}

	text, err := c.client.complete(ctx, c.modelName, system, p.User)
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

// classify maps transport failures onto the package's typed errors so the
// runner's retry policy can see them.
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

func joinSystem(system, extra string) string {
	if system == "" {
		return extra
	}
	return system + "\n\n" + extra
}

// sdkClient is the production completionClient backed by openai-go.
type sdkClient struct {
	opts []option.RequestOption
}

func (s *sdkClient) complete(ctx context.Context, modelName, system, user string) (string, error) {
	client := oai.NewClient(s.opts...)

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		msgs = append(msgs, oai.SystemMessage(system))
	}
	msgs = append(msgs, oai.UserMessage(user))

	resp, err := client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(modelName),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
