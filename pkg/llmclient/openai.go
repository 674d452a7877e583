package llmclient

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

// OpenAIClient completes prompts via OpenAI chat completions, requesting
// response_format: json_schema instead of raw prose.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	promptPrefix string
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from an API key and model name; an empty
// model name defaults to gpt-4o-mini.
func NewOpenAIClient(apiKey, modelName, promptPrefix string) *OpenAIClient {
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: modelName, promptPrefix: promptPrefix}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, schema Schema, maxTokens int, temperature float64) (json.RawMessage, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	fullPrompt := prompt
	if c.promptPrefix != "" {
		fullPrompt = c.promptPrefix + "\n\n" + prompt
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fullPrompt,
		}},
	}
	if schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "memento_extraction",
				Schema: schemaMarshaler(schema),
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.KindQuery, "openai returned no choices")
	}
	content := resp.Choices[0].Message.Content

	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(raw, schema); err != nil {
		return nil, err
	}
	return raw, nil
}
