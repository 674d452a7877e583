package llmclient

import (
	"context"
	"encoding/json"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

// GeminiClient completes prompts via Google's Generative AI API. It asks
// for a JSON MIME type response and then validates the result against
// schema, since the SDK's native response-schema type is a closer match
// to protobuf than to a plain JSON Schema document.
type GeminiClient struct {
	client       *genai.Client
	model        string
	promptPrefix string
}

var _ LLMClient = (*GeminiClient)(nil)

// NewGeminiClient builds a client from an API key; an empty model name
// defaults to gemini-1.5-pro.
func NewGeminiClient(ctx context.Context, apiKey, modelName, promptPrefix string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "gemini client init", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}
	return &GeminiClient{client: cli, model: modelName, promptPrefix: promptPrefix}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string, schema Schema, maxTokens int, temperature float64) (json.RawMessage, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	fullPrompt := prompt
	if c.promptPrefix != "" {
		fullPrompt = c.promptPrefix + " " + prompt
	}

	gm := c.client.GenerativeModel(c.model)
	gm.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		gm.SetMaxOutputTokens(int32(maxTokens))
	}
	if schema != nil {
		gm.ResponseMIMEType = "application/json"
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "gemini generate content", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errs.New(errs.KindQuery, "gemini returned no content")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(raw, schema); err != nil {
		return nil, err
	}
	return raw, nil
}
