package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

// OllamaClient completes prompts against a local Ollama server, asking
// for its format: "json" mode when a schema is given.
type OllamaClient struct {
	client       *ollama.Client
	model        string
	promptPrefix string
}

var _ LLMClient = (*OllamaClient)(nil)

// NewOllamaClient builds a client against host (default
// http://localhost:11434) and model name (required).
func NewOllamaClient(host, modelName, promptPrefix string) (*OllamaClient, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "parse ollama host", err)
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	return &OllamaClient{client: ollama.NewClient(u, httpClient), model: modelName, promptPrefix: promptPrefix}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, prompt string, schema Schema, maxTokens int, temperature float64) (json.RawMessage, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	fullPrompt := prompt
	if c.promptPrefix != "" {
		fullPrompt = c.promptPrefix + "\n\n" + prompt
	}

	req := &ollama.GenerateRequest{
		Model:  c.model,
		Prompt: fullPrompt,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}
	if schema != nil {
		req.Format = json.RawMessage(`"json"`)
	}

	var text strings.Builder
	err := c.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "ollama generate", err)
	}

	raw, err := extractJSON(text.String())
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(raw, schema); err != nil {
		return nil, err
	}
	return raw, nil
}
