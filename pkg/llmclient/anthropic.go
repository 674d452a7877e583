package llmclient

import (
	"context"
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

// AnthropicClient completes prompts via Anthropic's Messages API.
// Structured output is obtained by forcing a single tool call whose input
// schema is the caller's schema, since Claude has no native json_schema
// response mode.
type AnthropicClient struct {
	client       *anthropic.Client
	model        string
	promptPrefix string
}

var _ LLMClient = (*AnthropicClient)(nil)

const structuredToolName = "emit_structured_output"

// NewAnthropicClient builds a client from an API key; an empty model name
// defaults to claude-3-5-sonnet-latest.
func NewAnthropicClient(apiKey, modelName, promptPrefix string) *AnthropicClient {
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(apiKey))
	if modelName == "" {
		modelName = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{client: &cl, model: modelName, promptPrefix: promptPrefix}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string, schema Schema, maxTokens int, temperature float64) (json.RawMessage, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	fullPrompt := prompt
	if c.promptPrefix != "" {
		fullPrompt = c.promptPrefix + "\n\n" + prompt
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt)),
		},
	}
	if schema != nil {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		if props, ok := schema["properties"]; ok {
			inputSchema.Properties = props
		}
		if required, ok := schema["required"].([]any); ok {
			req := make([]string, 0, len(required))
			for _, r := range required {
				if s, ok := r.(string); ok {
					req = append(req, s)
				}
			}
			inputSchema.Required = req
		}
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        structuredToolName,
				Description: anthropic.String("Emit the extraction result as structured data matching the given schema."),
				InputSchema: inputSchema,
			},
		}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "anthropic messages.new", err)
	}

	if schema != nil {
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.ToolUseBlock); ok && tb.Name == structuredToolName {
				raw := json.RawMessage(tb.Input)
				if err := validateAgainstSchema(raw, schema); err != nil {
					return nil, err
				}
				return raw, nil
			}
		}
		return nil, errs.New(errs.KindSchemaViolation, "anthropic did not return the requested tool call")
	}

	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
