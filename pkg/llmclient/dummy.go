package llmclient

import (
	"context"
	"encoding/json"
)

// DummyClient is a deterministic, network-free LLMClient for tests and
// local development. Responses come from a caller-supplied function
// rather than a fixed canned string, since consolidation tests need to
// control exactly what "the model" extracted for a given prompt.
type DummyClient struct {
	// Respond, when set, is called for every Complete and its return value
	// is used verbatim (after schema validation). A nil Respond falls back
	// to an empty JSON object, which satisfies schemas with no required
	// fields and fails those that have any.
	Respond func(prompt string) (json.RawMessage, error)
}

var _ LLMClient = (*DummyClient)(nil)

// NewDummyClient builds a DummyClient. Passing a nil respond function
// yields the "{}" fallback described on DummyClient.Respond.
func NewDummyClient(respond func(prompt string) (json.RawMessage, error)) *DummyClient {
	return &DummyClient{Respond: respond}
}

func (c *DummyClient) Complete(_ context.Context, prompt string, schema Schema, _ int, _ float64) (json.RawMessage, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	raw := json.RawMessage(`{}`)
	if c.Respond != nil {
		r, err := c.Respond(prompt)
		if err != nil {
			return nil, err
		}
		raw = r
	}
	if err := validateAgainstSchema(raw, schema); err != nil {
		return nil, err
	}
	return raw, nil
}
