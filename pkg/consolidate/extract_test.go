package consolidate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/llmclient"
)

func TestExtractionStageCleansEntities(t *testing.T) {
	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{
			"entities": [
				{"name": "typescript", "type": "technology"},
				{"name": "", "type": "technology"},
				{"name": "Something", "type": "unknown"},
				{"name": "AWS", "type": "technology"}
			],
			"userBiographicalFacts": "works as a backend engineer",
			"memories": [{"content": "prefers TypeScript", "aboutEntities": ["TypeScript"]}]
		}`), nil
	}
	stage := NewExtractionStage(llmclient.NewDummyClient(respond), 3)

	got, err := stage.Extract(context.Background(), "some note about typescript and AWS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("expected 2 surviving entities, got %+v", got.Entities)
	}
	if got.Entities[0].Name != "Typescript" {
		t.Fatalf("expected lowercase name title-cased, got %q", got.Entities[0].Name)
	}
	if got.Entities[1].Name != "AWS" {
		t.Fatalf("expected acronym preserved, got %q", got.Entities[1].Name)
	}
	if got.UserBiographicalFacts == "" {
		t.Fatalf("expected biographical facts to survive")
	}
}

func TestExtractionStageRejectsEmptyNote(t *testing.T) {
	stage := NewExtractionStage(llmclient.NewDummyClient(nil), 3)
	_, err := stage.Extract(context.Background(), "   ")
	if err == nil {
		t.Fatalf("expected an error for a blank note")
	}
}

func TestExtractionStageRetriesOnSchemaViolation(t *testing.T) {
	attempts := 0
	respond := func(prompt string) (json.RawMessage, error) {
		attempts++
		if attempts < 2 {
			return json.RawMessage(`{"entities": []}`), nil // missing required "memories"
		}
		return json.RawMessage(`{"entities": [], "memories": []}`), nil
	}
	stage := NewExtractionStage(llmclient.NewDummyClient(respond), 3)

	got, err := stage.Extract(context.Background(), "a note")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
	if len(got.Entities) != 0 || len(got.Memories) != 0 {
		t.Fatalf("expected empty result after recovery, got %+v", got)
	}
}

func TestBuildExtractionPromptIncludesNote(t *testing.T) {
	prompt := buildExtractionPrompt("the note text")
	if !strings.Contains(prompt, "the note text") {
		t.Fatalf("expected prompt to embed the note, got %q", prompt)
	}
}
