// Package llmclient is the LLM completion capability with schema-enforced
// structured output, since extraction and resolution (pkg/consolidate)
// need validated JSON back, not prose.
package llmclient

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

// Schema is a JSON Schema document describing the expected shape of a
// completion's output. It is passed through to OpenAI's response_format and
// to Anthropic's forced tool input schema; for the other providers it is
// only used to validate the text they return.
type Schema map[string]any

// LLMClient is the capability interface consolidation depends on: a single
// structured completion call, with the provider responsible for surfacing
// a SchemaViolation when its output does not match schema.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, schema Schema, maxTokens int, temperature float64) (json.RawMessage, error)
}

// schemaMarshaler adapts Schema (a plain map) to the json.Marshaler
// interface some provider SDKs require for their structured-output schema
// field, rather than depending on a specific SDK's schema type.
type schemaMarshaler Schema

func (s schemaMarshaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// validatePrompt rejects empty or whitespace-only prompts before any
// provider round-trip, mirroring embedclient's validateNonEmpty.
func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errs.ErrEmptyInput
	}
	return nil
}

// validateAgainstSchema does a shallow, dependency-free structural check: it
// confirms raw decodes as JSON and, when schema declares top-level
// "required" properties, that they are present. This is intentionally not a
// full JSON Schema validator; it catches the
// common extraction failure mode of truncated or prose-wrapped output.
func validateAgainstSchema(raw []byte, schema Schema) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return errs.Wrap(errs.KindSchemaViolation, "llm output is not valid JSON", err)
	}
	if schema == nil {
		return nil
	}
	required, _ := schema["required"].([]any)
	if len(required) == 0 {
		return nil
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return errs.New(errs.KindSchemaViolation, "llm output is not a JSON object")
	}
	for _, r := range required {
		key, _ := r.(string)
		if key == "" {
			continue
		}
		if _, present := obj[key]; !present {
			return errs.New(errs.KindSchemaViolation, "llm output missing required field "+key)
		}
	}
	return nil
}

// extractJSON pulls the first complete JSON value (object or array) out of
// arbitrary text, since chat-completion providers without a native JSON mode
// tend to wrap their output in prose or markdown fences.
func extractJSON(text string) (json.RawMessage, error) {
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errs.New(errs.KindSchemaViolation, "llm output contains no JSON value")
	}
	open, close := byte('{'), byte('}')
	if text[start] == '[' {
		open, close = '[', ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return json.RawMessage(text[start : i+1]), nil
			}
		}
	}
	return nil, errs.New(errs.KindSchemaViolation, "llm output has an unterminated JSON value")
}
