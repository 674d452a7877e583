package llmclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/errs"
)

func TestDummyCompleteRejectsEmptyPrompt(t *testing.T) {
	c := NewDummyClient(nil)
	if _, err := c.Complete(context.Background(), "  ", nil, 0, 0); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestDummyCompleteDefaultsToEmptyObject(t *testing.T) {
	c := NewDummyClient(nil)
	raw, err := c.Complete(context.Background(), "extract this", nil, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("expected {}, got %s", raw)
	}
}

func TestDummyCompleteValidatesRequiredFields(t *testing.T) {
	schema := Schema{"required": []any{"entities"}}
	c := NewDummyClient(func(string) (json.RawMessage, error) {
		return json.RawMessage(`{"entities": []}`), nil
	})
	if _, err := c.Complete(context.Background(), "prompt", schema, 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDummyCompleteSurfacesSchemaViolationOnMissingField(t *testing.T) {
	schema := Schema{"required": []any{"entities"}}
	c := NewDummyClient(func(string) (json.RawMessage, error) {
		return json.RawMessage(`{"other": 1}`), nil
	})
	_, err := c.Complete(context.Background(), "prompt", schema, 0, 0)
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if errs.KindOf(err) != errs.KindSchemaViolation {
		t.Fatalf("expected KindSchemaViolation, got %v", errs.KindOf(err))
	}
}

func TestDummyCompleteSurfacesSchemaViolationOnInvalidJSON(t *testing.T) {
	c := NewDummyClient(func(string) (json.RawMessage, error) {
		return json.RawMessage(`not json`), nil
	})
	_, err := c.Complete(context.Background(), "prompt", nil, 0, 0)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if errs.KindOf(err) != errs.KindSchemaViolation {
		t.Fatalf("expected KindSchemaViolation, got %v", errs.KindOf(err))
	}
}

func TestExtractJSONFromProseWrappedOutput(t *testing.T) {
	text := "Here is the result:\n```json\n{\"a\": 1}\n```\nThanks."
	raw, err := extractJSON(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got err: %v", err)
	}
	if decoded["a"] != 1 {
		t.Fatalf("expected a=1, got %v", decoded)
	}
}

func TestExtractJSONIgnoresBracesInsideStrings(t *testing.T) {
	text := `{"note": "use {curly} braces"}`
	raw, err := extractJSON(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded["note"] != "use {curly} braces" {
		t.Fatalf("unexpected decode: %v", decoded)
	}
}

func TestExtractJSONNoValue(t *testing.T) {
	if _, err := extractJSON("no json here"); err == nil {
		t.Fatal("expected error")
	}
}
