package memento

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/embedclient"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/model"
)

func extractionRespond(prompt string) (json.RawMessage, error) {
	switch {
	case strings.Contains(prompt, "Extract entities"):
		return json.RawMessage(`{
			"entities": [{"name": "Go", "type": "technology"}],
			"memories": [{"content": "likes Go", "aboutEntities": ["Go"]}]
		}`), nil
	case strings.Contains(prompt, "CREATE") || strings.Contains(prompt, "MATCH"):
		return json.RawMessage(`{"action": "CREATE", "reason": "new"}`), nil
	case strings.Contains(prompt, "ADD") || strings.Contains(prompt, "SKIP"):
		return json.RawMessage(`{"action": "ADD", "reason": "new"}`), nil
	default:
		return json.RawMessage(`{"shouldUpdate": false}`), nil
	}
}

func TestMementoRetrieve(t *testing.T) {
	s := NewInMemoryStore()
	s.PutEntity(model.Entity{ID: "e1", Name: "Go"})
	s.LinkMemory(model.Memory{ID: "m1", Content: "I like Go programming", Embedding: model.Embedding{1, 0, 0}}, "e1")

	embedder := embedclient.NewDummyClient(3)
	mem := New(s, embedder, nil, DefaultConfig())

	got, err := mem.Retrieve(context.Background(), "Go programming", 5, model.SourceWeights{Vector: 1, Fulltext: 1}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Memories) == 0 {
		t.Fatalf("expected at least one retrieved memory")
	}
}

func TestMementoHandleRequestInjectsMemories(t *testing.T) {
	s := NewInMemoryStore()
	s.PutEntity(model.Entity{ID: "e1", Name: "Go"})
	s.LinkMemory(model.Memory{ID: "m1", Content: "I like Go programming", Embedding: model.Embedding{1, 0, 0}}, "e1")

	embedder := embedclient.NewDummyClient(3)
	mem := New(s, embedder, nil, DefaultConfig())

	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "tell me about Go programming"},
		},
	}
	out := mem.HandleRequest(context.Background(), body, "")
	msg := out["messages"].([]any)[0].(map[string]any)
	content := msg["content"].(string)
	if !strings.Contains(content, "<memento>") {
		t.Fatalf("expected injected memento block, got %q", content)
	}
}

func TestMementoHandleRequestNoopWithoutUserMessage(t *testing.T) {
	s := NewInMemoryStore()
	embedder := embedclient.NewDummyClient(3)
	mem := New(s, embedder, nil, DefaultConfig())

	body := map[string]any{"messages": []any{}}
	out := mem.HandleRequest(context.Background(), body, "")
	if len(out["messages"].([]any)) != 0 {
		t.Fatalf("expected body unchanged, got %+v", out)
	}
}

func TestMementoConsolidateWithoutLLMFails(t *testing.T) {
	s := NewInMemoryStore()
	embedder := embedclient.NewDummyClient(3)
	mem := New(s, embedder, nil, DefaultConfig())

	_, err := mem.Consolidate(context.Background(), "some note", "", "")
	if err == nil {
		t.Fatalf("expected an error when no LLMClient is configured")
	}
}

func TestMementoConsolidateAndApply(t *testing.T) {
	s := NewInMemoryStore()
	embedder := embedclient.NewDummyClient(3)
	llm := llmclient.NewDummyClient(extractionRespond)
	mem := New(s, embedder, llm, DefaultConfig())

	plan, err := mem.Consolidate(context.Background(), "I really like the Go programming language", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Entities) != 1 || len(plan.Memories) != 1 {
		t.Fatalf("expected one entity and one memory decision, got %+v", plan)
	}

	stats, err := mem.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error applying plan: %v", err)
	}
	if stats.EntitiesCreated != 1 || stats.MemoriesAdded != 1 {
		t.Fatalf("expected one entity created and one memory added, got %+v", stats)
	}
}
