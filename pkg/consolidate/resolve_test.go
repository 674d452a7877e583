package consolidate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/store"
)

func TestResolveEntityMatch(t *testing.T) {
	s := store.NewInMemoryStore()
	s.PutEntity(model.Entity{ID: "e1", Name: "TypeScript", Type: "technology"})

	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"action": "MATCH", "matchedEntityId": "e1", "reason": "same entity"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	candidates, err := CandidatesForEntity(context.Background(), s, ExtractedEntity{Name: "TypeScript", Type: "technology"}, model.RetrievalResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "e1" {
		t.Fatalf("expected direct lookup candidate e1, got %+v", candidates)
	}

	decision, repaired, _, err := stage.ResolveEntity(context.Background(), ExtractedEntity{Name: "TypeScript", Type: "technology"}, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired {
		t.Fatalf("expected no repair for a valid MATCH")
	}
	if decision.Action != model.ActionMatch || decision.MatchedID != "e1" {
		t.Fatalf("expected MATCH e1, got %+v", decision)
	}
}

func TestResolveEntityRepairsMatchWithoutID(t *testing.T) {
	s := store.NewInMemoryStore()
	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"action": "MATCH", "reason": "looks similar"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	decision, repaired, _, err := stage.ResolveEntity(context.Background(), ExtractedEntity{Name: "Foo", Type: "technology"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repaired {
		t.Fatalf("expected MATCH without matchedEntityId to be repaired")
	}
	if decision.Action != model.ActionCreate {
		t.Fatalf("expected repaired action CREATE, got %v", decision.Action)
	}
}

func TestResolveEntityReportsRetries(t *testing.T) {
	s := store.NewInMemoryStore()
	attempts := 0
	respond := func(prompt string) (json.RawMessage, error) {
		attempts++
		if attempts == 1 {
			return json.RawMessage(`not json at all`), nil
		}
		return json.RawMessage(`{"action": "CREATE", "reason": "new"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	decision, repaired, retried, err := stage.ResolveEntity(context.Background(), ExtractedEntity{Name: "Foo", Type: "technology"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired {
		t.Fatalf("expected no repair after a successful retry")
	}
	if retried != 1 {
		t.Fatalf("expected one retried completion, got %d", retried)
	}
	if decision.Action != model.ActionCreate {
		t.Fatalf("expected CREATE, got %v", decision.Action)
	}
}

func TestResolveMemoryRepairsUpdateWithoutTarget(t *testing.T) {
	s := store.NewInMemoryStore()
	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"action": "UPDATE", "reason": "refines an existing note"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	decision, repaired, _, err := stage.ResolveMemory(context.Background(), ExtractedMemory{Content: "new fact"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repaired {
		t.Fatalf("expected UPDATE without targetId to be repaired")
	}
	if decision.Action != model.ActionAdd {
		t.Fatalf("expected repaired action ADD, got %v", decision.Action)
	}
}

func TestResolveMemorySkip(t *testing.T) {
	s := store.NewInMemoryStore()
	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"action": "SKIP", "reason": "already known"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	decision, repaired, _, err := stage.ResolveMemory(context.Background(), ExtractedMemory{Content: "duplicate"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired {
		t.Fatalf("expected no repair for a valid SKIP")
	}
	if decision.Action != model.ActionSkip {
		t.Fatalf("expected SKIP, got %v", decision.Action)
	}
}

func TestResolveUserDescriptionNoFactsIsNoop(t *testing.T) {
	s := store.NewInMemoryStore()
	stage := NewResolutionStage(llmclient.NewDummyClient(nil), s, 3)

	desc, should, _, err := stage.ResolveUserDescription(context.Background(), "", "existing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if should || desc != "" {
		t.Fatalf("expected no update when there are no facts")
	}
}

func TestResolveUserDescriptionUpdates(t *testing.T) {
	s := store.NewInMemoryStore()
	respond := func(prompt string) (json.RawMessage, error) {
		return json.RawMessage(`{"shouldUpdate": true, "description": "backend engineer who likes TypeScript"}`), nil
	}
	stage := NewResolutionStage(llmclient.NewDummyClient(respond), s, 3)

	desc, should, _, err := stage.ResolveUserDescription(context.Background(), "works as a backend engineer", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !should || desc == "" {
		t.Fatalf("expected an updated description, got should=%v desc=%q", should, desc)
	}
}
