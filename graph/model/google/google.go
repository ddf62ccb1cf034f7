// Package google adapts the Gemini API to the model.Caller interface.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/contentflow-go/graph/model"
)

const defaultModel = "gemini-1.5-flash"

// Caller implements model.Caller against the Gemini API.
//
// Gemini has a native JSON response mode, so ShapeJSON prompts request
// "application/json" directly instead of relying on prompt instructions.
type Caller struct {
	apiKey    string
	modelName string
	client    generateClient
}

// generateClient isolates the SDK call so tests can substitute a fake.
type generateClient interface {
	generate(ctx context.Context, modelName, system, user string, jsonMode bool) (string, error)
}

// NewCaller creates a Gemini-backed Caller. An empty modelName selects a
// fast default model.
func NewCaller(apiKey, modelName string) *Caller {
	if modelName == "" {
		modelName = defaultModel
	}
	return &Caller{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey},
	}
}

// Invoke implements model.Caller.
func (c *Caller) Invoke(ctx context.Context, p model.Prompt) (model.Output, error) {
	jsonMode := p.Shape == model.ShapeJSON

	text, err := c.client.generate(ctx, c.modelName, p.System, p.User, jsonMode)
	if err != nil {
		return model.Output{}, classify(err)
	}

	out := model.Output{Text: text}
	if jsonMode {
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

// sdkClient is the production generateClient backed by generative-ai-go.
type sdkClient struct {
	apiKey string
}

func (s *sdkClient) generate(ctx context.Context, modelName, system, user string, jsonMode bool) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	m := client.GenerativeModel(modelName)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if jsonMode {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: no text parts in response")
	}
	return sb.String(), nil
}
