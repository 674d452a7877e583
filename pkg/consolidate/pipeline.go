package consolidate

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/retrieval"
	"github.com/Protocol-Lattice/memento/pkg/store"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// Input is one note (plus its embedding, so Branch A can run a vector
// query without re-embedding) fed to the pipeline.
type Input struct {
	Note             string
	NoteEmbedding    model.Embedding
	Space            string
	ExistingUserDesc string
	ContextK         int
}

// Pipeline runs the two-branch consolidation:
// Branch A (context retrieval) and Branch B (extraction) run concurrently
// via errgroup, join at a barrier, then resolution turns Branch B's
// extracted entities/memories into a WritePlan using Branch A's context as
// match candidates. The pipeline never writes to the graph itself; it only
// produces the plan for a caller to Apply.
type Pipeline struct {
	retriever  *retrieval.HybridRetriever
	extraction *ExtractionStage
	resolution *ResolutionStage
}

// NewPipeline wires a Pipeline from its three stages.
func NewPipeline(retriever *retrieval.HybridRetriever, extraction *ExtractionStage, resolution *ResolutionStage) *Pipeline {
	return &Pipeline{retriever: retriever, extraction: extraction, resolution: resolution}
}

// Run executes one consolidation pass end to end.
//
// If Branch A (context retrieval) fails, resolution proceeds with an
// empty context: every entity is resolved against a direct store lookup
// alone and every memory is resolved with no candidates, which degrades
// match quality but never blocks the plan.
// If Branch B (extraction) fails, the whole pipeline fails: there is
// nothing to resolve without it.
func (p *Pipeline) Run(ctx context.Context, s store.GraphStore, in Input) (model.WritePlan, error) {
	if strings.TrimSpace(in.Note) == "" {
		return model.WritePlan{}, nil
	}

	var (
		retrieved      model.RetrievalResult
		extracted      ExtractResult
		branchALatency time.Duration
		branchBLatency time.Duration
		branchBErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		res, err := p.retriever.Retrieve(gctx, model.RetrievalQuery{
			Text:      in.Note,
			Embedding: in.NoteEmbedding,
			K:         contextK(in.ContextK),
			Weights:   model.SourceWeights{Vector: 1, Fulltext: 1, Graph: 1},
			Space:     in.Space,
		})
		branchALatency = time.Since(start)
		if err != nil {
			return nil // Branch A failures degrade: resolution falls back to a direct lookup
		}
		retrieved = res
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		res, err := p.extraction.Extract(gctx, in.Note)
		branchBLatency = time.Since(start)
		if err != nil {
			branchBErr = err
			return err // Branch B failures are fatal to the whole pipeline
		}
		extracted = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.WritePlan{}, branchBErr
	}

	plan := model.WritePlan{Stats: model.PipelineStats{
		BranchALatency: branchALatency,
		BranchBLatency: branchBLatency,
	}}

	for _, e := range extracted.Entities {
		candidates, err := CandidatesForEntity(ctx, s, e, retrieved)
		if err != nil {
			candidates = nil
		}
		decision, repaired, retried, err := p.resolution.ResolveEntity(ctx, e, candidates)
		plan.Stats.LLMCalls += retried + 1 // every retry is its own completion call
		plan.Stats.RetriedDecisions += retried
		if err != nil {
			continue
		}
		if repaired {
			plan.Stats.RepairedDecisions++
		}
		plan.Entities = append(plan.Entities, decision)
	}

	candidateMemories := CandidatesForMemory(retrieved, 10)
	for _, m := range extracted.Memories {
		decision, repaired, retried, err := p.resolution.ResolveMemory(ctx, m, candidateMemories)
		plan.Stats.LLMCalls += retried + 1
		plan.Stats.RetriedDecisions += retried
		if err != nil {
			continue
		}
		if repaired {
			plan.Stats.RepairedDecisions++
		}
		decision.Space = in.Space
		for _, name := range m.AboutEntities {
			if n := textutil.NormalizeEntityName(strings.TrimSpace(name)); n != "" {
				decision.About = append(decision.About, n)
			}
		}
		if textutil.IsValidTimestamp(m.ValidAt) {
			decision.ValidAt = m.ValidAt
		}
		if decision.Action == model.ActionAdd {
			// Minted once here and carried on the decision: replaying this
			// same WritePlan resolves ADD to the same id so the store's
			// conflict/merge-by-id clause fires on the second apply, while
			// a separate consolidation of the same fact still gets its own
			// time-ordered row.
			id, idErr := textutil.GenerateID()
			if idErr != nil {
				return model.WritePlan{}, idErr
			}
			decision.ID = id
		}
		plan.Memories = append(plan.Memories, decision)
	}

	desc, shouldUpdate, retried, err := p.resolution.ResolveUserDescription(ctx, extracted.UserBiographicalFacts, in.ExistingUserDesc)
	if strings.TrimSpace(extracted.UserBiographicalFacts) != "" {
		plan.Stats.LLMCalls += retried + 1
		plan.Stats.RetriedDecisions += retried
	}
	if err == nil && shouldUpdate {
		plan.UserDesc = desc
	}

	return plan, nil
}

func contextK(k int) uint32 {
	if k <= 0 {
		return 10
	}
	return uint32(k)
}
