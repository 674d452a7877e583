package retrieval

import (
	"context"
	"testing"

	"github.com/Protocol-Lattice/memento/pkg/config"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/store"
)

func seedStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	s := store.NewInMemoryStore()
	s.PutEntity(model.Entity{ID: "e-ts", Name: "TypeScript", Degree: 3})
	s.LinkMemory(model.Memory{ID: "m1", Content: "I prefer TypeScript for everything", Embedding: model.Embedding{1, 0, 0}}, "e-ts")
	s.LinkMemory(model.Memory{ID: "m2", Content: "unrelated note about gardening", Embedding: model.Embedding{0, 1, 0}})
	return s
}

func TestHybridRetrieverFusesVectorAndFulltext(t *testing.T) {
	s := seedStore(t)
	r := New(s, config.Default())

	q := model.RetrievalQuery{
		Text:      "typescript",
		Embedding: model.Embedding{1, 0, 0},
		K:         10,
		Weights:   model.SourceWeights{Vector: 1, Fulltext: 1, Graph: 1},
	}
	got, err := r.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Memories) == 0 {
		t.Fatalf("expected at least one fused memory")
	}
	if got.Memories[0].Memory.ID != "m1" {
		t.Fatalf("expected m1 ranked first, got %+v", got.Memories)
	}
	if got.Memories[0].Source != model.SourceFused {
		t.Fatalf("expected fused source, got %s", got.Memories[0].Source)
	}
	for i := 1; i < len(got.Memories); i++ {
		if got.Memories[i].Score > got.Memories[i-1].Score {
			t.Fatalf("result not sorted descending: %+v", got.Memories)
		}
	}
}

func TestHybridRetrieverGraphBranchUsesSeedEntities(t *testing.T) {
	s := seedStore(t)
	r := New(s, config.Default())

	q := model.RetrievalQuery{
		Text:            "what does the user like",
		Embedding:       model.Embedding{1, 0, 0},
		K:               5,
		Weights:         model.SourceWeights{Vector: 0, Fulltext: 0, Graph: 1},
		SeedEntityNames: []string{"TypeScript"},
	}
	got, err := r.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, sm := range got.Memories {
		if sm.Memory.ID == "m1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the graph walk to surface m1 via the TypeScript entity, got %+v", got.Memories)
	}
}

func TestHybridRetrieverEmptySeedIsNotAFailure(t *testing.T) {
	s := seedStore(t)
	r := New(s, config.Default())

	q := model.RetrievalQuery{
		Text:      "typescript",
		Embedding: model.Embedding{1, 0, 0},
		K:         10,
		Weights:   model.SourceWeights{Vector: 1, Fulltext: 1, Graph: 1},
	}
	got, err := r.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("expected no error with an empty seed entity list, got %v", err)
	}
	if len(got.Memories) == 0 {
		t.Fatalf("expected vector/fulltext to still contribute results")
	}
}

func TestHybridRetrieverInvalidQueryRejected(t *testing.T) {
	s := seedStore(t)
	r := New(s, config.Default())

	_, err := r.Retrieve(context.Background(), model.RetrievalQuery{Text: "x", K: 5})
	if err == nil {
		t.Fatalf("expected an error for an all-zero weight query")
	}
}

func TestHybridRetrieverRespectsK(t *testing.T) {
	s := seedStore(t)
	r := New(s, config.Default())

	q := model.RetrievalQuery{
		Text:      "note",
		Embedding: model.Embedding{0, 1, 0},
		K:         1,
		Weights:   model.SourceWeights{Vector: 1, Fulltext: 1},
	}
	got, err := r.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Memories) > 1 {
		t.Fatalf("expected at most 1 memory, got %d", len(got.Memories))
	}
}
