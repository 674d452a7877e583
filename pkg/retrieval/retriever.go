// Package retrieval implements the hybrid, graph-aware retriever: it
// fans out vector, full-text and graph-walk sub-queries, aligns the first
// two score distributions, fuses all three via RRF, applies a one-hop
// spreading-activation boost, and returns a ranked, provenance-carrying
// RetrievalResult.
package retrieval

import (
	"context"
	"log"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/memento/pkg/config"
	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/fusion"
	"github.com/Protocol-Lattice/memento/pkg/graph"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/store"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
	"github.com/Protocol-Lattice/memento/pkg/vectormath"
)

// HybridRetriever orchestrates the three sub-queries against a GraphStore
// and fuses them into one ranked list. It holds no request-scoped state;
// a single instance is safe for concurrent use across retrievals.
type HybridRetriever struct {
	store  store.GraphStore
	cfg    config.Config
	logger *log.Logger
}

// New builds a HybridRetriever over store with cfg (zero-value fields
// fall back to config.Default()).
func New(s store.GraphStore, cfg config.Config) *HybridRetriever {
	return &HybridRetriever{
		store:  s,
		cfg:    cfg.WithDefaults(),
		logger: log.New(os.Stderr, "retrieval: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger.
func (r *HybridRetriever) WithLogger(l *log.Logger) *HybridRetriever {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *HybridRetriever) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// subResult is one of the three sub-queries' outcome, gathered unordered
// by the errgroup and reconciled once all have settled.
type subResult struct {
	source model.Source
	scored []model.ScoredMemory
	err    error
}

// Retrieve executes the hybrid retrieval. A
// sub-query failure is retried per the retry policy, then excluded from
// fusion with a logged warning; if all three fail, ErrAllSourcesFailed is
// returned. Otherwise a RetrievalResult is built from whatever survived.
func (r *HybridRetriever) Retrieve(ctx context.Context, q model.RetrievalQuery) (model.RetrievalResult, error) {
	if err := q.Validate(); err != nil {
		return model.RetrievalResult{}, err
	}
	k := int(q.K)
	if k <= 0 {
		k = r.cfg.Retrieval.DefaultK
	}

	policy := errs.RetryPolicy{
		MaxRetries: r.cfg.Retry.MaxRetries,
		BaseDelay:  r.cfg.Retry.BaseDelay,
		MaxDelay:   r.cfg.Retry.MaxDelay,
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]subResult, 3)

	g.Go(func() error {
		scored, err := retryScoredQuery(gctx, policy, func(ctx context.Context) ([]model.ScoredMemory, error) {
			return r.store.SearchVector(ctx, q.Embedding, k, q.Space)
		})
		results[0] = subResult{source: model.SourceVector, scored: scored, err: err}
		return nil
	})
	g.Go(func() error {
		lucene := textutil.SanitizeLucene(q.Text)
		scored, err := retryScoredQuery(gctx, policy, func(ctx context.Context) ([]model.ScoredMemory, error) {
			return r.store.SearchFulltext(ctx, lucene, k, q.Space)
		})
		results[1] = subResult{source: model.SourceFulltext, scored: scored, err: err}
		return nil
	})
	g.Go(func() error {
		scored, err := retryScoredQuery(gctx, policy, func(ctx context.Context) ([]model.ScoredMemory, error) {
			return r.runGraphBranch(ctx, q, k)
		})
		results[2] = subResult{source: model.SourceGraph, scored: scored, err: err}
		return nil
	})
	_ = g.Wait() // sub-query errors degrade rather than abort the group

	survivors := 0
	for _, res := range results {
		if res.err == nil {
			survivors++
		} else {
			r.logf("%s sub-query failed, excluded from fusion: %v", res.source, res.err)
		}
	}
	if survivors == 0 {
		return model.RetrievalResult{}, errs.ErrAllSourcesFailed
	}

	target := vectormath.Target{Mu: r.cfg.Retrieval.AlignTargetMu, Sigma: r.cfg.Retrieval.AlignTargetSig}
	byID := make(map[string]model.ScoredMemory)
	var lists [][]fusion.Item
	var weights []float64

	if results[0].err == nil {
		aligned := vectormath.AlignDistribution(scoresOf(results[0].scored), target)
		lists = append(lists, itemsFrom(results[0].scored, aligned, byID))
		weights = append(weights, q.Weights.Vector)
	}
	if results[1].err == nil {
		aligned := vectormath.AlignDistribution(scoresOf(results[1].scored), target)
		lists = append(lists, itemsFrom(results[1].scored, aligned, byID))
		weights = append(weights, q.Weights.Fulltext)
	}
	if results[2].err == nil {
		lists = append(lists, itemsFrom(results[2].scored, nil, byID))
		weights = append(weights, q.Weights.Graph)
	}

	fused := fusion.WeightedRRF(lists, r.cfg.Retrieval.RRFK, weights)
	scoredOut := make([]model.ScoredMemory, 0, len(fused))
	for _, f := range fused {
		sm := byID[f.Item.ID]
		sm.Score = f.Score
		sm.Source = model.SourceFused
		scoredOut = append(scoredOut, sm)
	}

	scoredOut = r.applySpreadingActivation(ctx, scoredOut)

	sort.SliceStable(scoredOut, func(i, j int) bool { return scoredOut[i].Score > scoredOut[j].Score })
	if len(scoredOut) > k {
		scoredOut = scoredOut[:k]
	}
	return model.RetrievalResult{Memories: scoredOut}, nil
}

// runGraphBranch seeds the personalized random walk from q.SeedEntityNames
// and converts the resulting visit fractions into scored memories. An
// empty seed list is a legitimate zero-contribution result, not an error,
// which keeps this sub-query independent of whatever the vector/fulltext
// branches find.
func (r *HybridRetriever) runGraphBranch(ctx context.Context, q model.RetrievalQuery, k int) ([]model.ScoredMemory, error) {
	if len(q.SeedEntityNames) == 0 {
		return nil, nil
	}
	entities := make([]model.Entity, 0, len(q.SeedEntityNames))
	for _, name := range q.SeedEntityNames {
		e, err := r.store.GetEntityByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entities = append(entities, *e)
		}
	}
	if len(entities) == 0 {
		return nil, nil
	}

	weightCfg := graph.WeightConfig{
		Semantic:   r.cfg.Weight.Semantic,
		Memory:     r.cfg.Weight.Memory,
		Structural: r.cfg.Weight.Structural,
	}
	weights := graph.Weight(entities, nil, q.Embedding, weightCfg)
	if len(weights) == 0 {
		return nil, nil
	}

	edges := graph.Edges{EntityToMemories: map[string][]string{}, MemoryToEntities: map[string][]string{}}
	for _, e := range entities {
		neighbors, err := r.store.Neighbors(ctx, e.ID, 1)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if n.MemoryID == "" {
				continue
			}
			edges.EntityToMemories[e.Name] = appendUnique(edges.EntityToMemories[e.Name], n.MemoryID)
			edges.MemoryToEntities[n.MemoryID] = appendUnique(edges.MemoryToEntities[n.MemoryID], e.Name)
		}
	}

	walkCfg := graph.WalkConfig{
		Steps:        r.cfg.Walk.Steps,
		RestartAlpha: r.cfg.Walk.RestartAlpha,
		Seed:         graph.SeedFromText(q.Text),
	}
	visits := graph.Walk(edges, weights, walkCfg)
	ranked := graph.RankedMemories(visits)

	// Entities carry no Space of their own (only Memory does), so unlike
	// the vector/fulltext branches the walk can't filter by space before
	// resolving ids; it filters each candidate memory after the point
	// lookup instead.
	wantSpace := model.EffectiveSpace(q.Space)
	out := make([]model.ScoredMemory, 0, k)
	for _, rm := range ranked {
		if len(out) >= k {
			break
		}
		mem, err := r.store.GetMemoryByID(ctx, rm.MemoryID)
		if err != nil {
			return nil, err
		}
		if mem == nil || model.EffectiveSpace(mem.Space) != wantSpace {
			continue
		}
		out = append(out, model.ScoredMemory{
			Memory:     *mem,
			Score:      rm.Score,
			Source:     model.SourceGraph,
			AboutNames: edges.MemoryToEntities[rm.MemoryID],
		})
	}
	return out, nil
}

// applySpreadingActivation gives a small additive boost to memories
// directly graph-adjacent to the top-N fused results that aren't already
// present, reusing the same Neighbors call the graph walker needs. The
// boost spreads through entity-mediated adjacency since this graph model
// has no memory-to-memory edge.
func (r *HybridRetriever) applySpreadingActivation(ctx context.Context, scored []model.ScoredMemory) []model.ScoredMemory {
	boost := r.cfg.Retrieval.SpreadBoost
	topN := r.cfg.Retrieval.SpreadTopN
	if boost <= 0 || topN <= 0 {
		return scored
	}
	if topN > len(scored) {
		topN = len(scored)
	}
	present := make(map[string]bool, len(scored))
	for _, sm := range scored {
		present[sm.Memory.ID] = true
	}
	for i := 0; i < topN; i++ {
		for _, eid := range scored[i].Memory.About {
			neighbors, err := r.store.Neighbors(ctx, eid, 1)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				if n.MemoryID == "" || n.MemoryID == scored[i].Memory.ID || present[n.MemoryID] {
					continue
				}
				mem, err := r.store.GetMemoryByID(ctx, n.MemoryID)
				if err != nil || mem == nil {
					continue
				}
				present[n.MemoryID] = true
				scored = append(scored, model.ScoredMemory{Memory: *mem, Score: boost, Source: model.SourceFused})
			}
		}
	}
	return scored
}

func retryScoredQuery(ctx context.Context, policy errs.RetryPolicy, fn func(context.Context) ([]model.ScoredMemory, error)) ([]model.ScoredMemory, error) {
	var out []model.ScoredMemory
	err := errs.Do(ctx, policy, func() error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func scoresOf(scored []model.ScoredMemory) []float64 {
	out := make([]float64, len(scored))
	for i, sm := range scored {
		out[i] = sm.Score
	}
	return out
}

// itemsFrom converts a ranked ScoredMemory slice into fusion.Items keyed
// by memory id, registering each memory's current view in byID. If
// aligned is non-nil its values overwrite the per-memory score (the
// distribution-aligned value) before registration;
// RRF itself only consumes rank position, never the score.
func itemsFrom(scored []model.ScoredMemory, aligned []float64, byID map[string]model.ScoredMemory) []fusion.Item {
	items := make([]fusion.Item, len(scored))
	for i, sm := range scored {
		if aligned != nil && i < len(aligned) {
			sm.Score = aligned[i]
		}
		byID[sm.Memory.ID] = sm
		items[i] = fusion.Item{ID: sm.Memory.ID}
	}
	return items
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
