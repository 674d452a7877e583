package consolidate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/config"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/retrieval"
	"github.com/Protocol-Lattice/memento/pkg/store"
)

func extractionRespond(prompt string) (json.RawMessage, error) {
	if strings.Contains(prompt, "Extract entities") {
		return json.RawMessage(`{
			"entities": [{"name": "Rust", "type": "technology"}],
			"memories": [{"content": "wants to learn Rust", "aboutEntities": ["Rust"]}]
		}`), nil
	}
	if strings.Contains(prompt, "CREATE") || strings.Contains(prompt, "MATCH") {
		return json.RawMessage(`{"action": "CREATE", "reason": "no existing match"}`), nil
	}
	if strings.Contains(prompt, "ADD") || strings.Contains(prompt, "SKIP") {
		return json.RawMessage(`{"action": "ADD", "reason": "new fact"}`), nil
	}
	return json.RawMessage(`{"shouldUpdate": false}`), nil
}

func TestPipelineRunProducesPlan(t *testing.T) {
	s := store.NewInMemoryStore()
	s.PutEntity(model.Entity{ID: "e-ts", Name: "TypeScript"})
	s.LinkMemory(model.Memory{ID: "m1", Content: "prefers TypeScript", Embedding: model.Embedding{1, 0, 0}}, "e-ts")

	retriever := retrieval.New(s, config.Default())
	extraction := NewExtractionStage(llmclient.NewDummyClient(extractionRespond), 3)
	resolution := NewResolutionStage(llmclient.NewDummyClient(extractionRespond), s, 3)
	pipeline := NewPipeline(retriever, extraction, resolution)

	plan, err := pipeline.Run(context.Background(), s, Input{
		Note:          "I want to learn Rust next",
		NoteEmbedding: model.Embedding{0, 1, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Entities) != 1 || plan.Entities[0].Action != model.ActionCreate {
		t.Fatalf("expected one CREATE entity decision, got %+v", plan.Entities)
	}
	if len(plan.Memories) != 1 || plan.Memories[0].Action != model.ActionAdd {
		t.Fatalf("expected one ADD memory decision, got %+v", plan.Memories)
	}
	if len(plan.Memories[0].About) != 1 || plan.Memories[0].About[0] != "Rust" {
		t.Fatalf("expected the memory decision to carry its about entities, got %+v", plan.Memories[0].About)
	}
	if plan.Stats.LLMCalls == 0 {
		t.Fatalf("expected LLM call count to be tracked")
	}
}

func TestPipelineRunEmptyNoteIsNoop(t *testing.T) {
	s := store.NewInMemoryStore()
	retriever := retrieval.New(s, config.Default())
	extraction := NewExtractionStage(llmclient.NewDummyClient(extractionRespond), 3)
	resolution := NewResolutionStage(llmclient.NewDummyClient(extractionRespond), s, 3)
	pipeline := NewPipeline(retriever, extraction, resolution)

	plan, err := pipeline.Run(context.Background(), s, Input{Note: "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Entities) != 0 || len(plan.Memories) != 0 {
		t.Fatalf("expected an empty plan for a blank note, got %+v", plan)
	}
}

func TestPipelineRunFailsWhenExtractionFails(t *testing.T) {
	s := store.NewInMemoryStore()
	retriever := retrieval.New(s, config.Default())
	failing := llmclient.NewDummyClient(func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"entities": []}`), nil // missing required "memories", every retry fails the same way
	})
	extraction := NewExtractionStage(failing, 1)
	resolution := NewResolutionStage(llmclient.NewDummyClient(extractionRespond), s, 3)
	pipeline := NewPipeline(retriever, extraction, resolution)

	_, err := pipeline.Run(context.Background(), s, Input{
		Note:          "a note",
		NoteEmbedding: model.Embedding{1, 0, 0},
	})
	if err == nil {
		t.Fatalf("expected an error when extraction never recovers")
	}
}
