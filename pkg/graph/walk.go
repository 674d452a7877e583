package graph

import (
	"hash/fnv"
	"math/rand"
	"sort"
)

// Edges describes the adjacency the walker needs: given an entity id (by
// name, since that's what Weight produces), return the memory ids it is
// directly linked to, and given a memory id, the entity names it is about.
// The walker never talks to a store directly; callers (pkg/retrieval)
// adapt GraphStore.Neighbors into this shape once per retrieval.
type Edges struct {
	EntityToMemories map[string][]string
	MemoryToEntities map[string][]string
}

// WalkConfig tunes the personalized random walk.
type WalkConfig struct {
	Steps        int     // default 10
	RestartAlpha float64 // default 0.15
	Seed         int64   // callers derive this from query text via SeedFromText
}

// DefaultWalkConfig returns the production defaults.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{Steps: 10, RestartAlpha: 0.15}
}

// SeedFromText derives a deterministic PRNG seed from query text, so walks
// are reproducible in tests without a caller-supplied seed.
func SeedFromText(text string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return int64(h.Sum64())
}

// Walk executes a personalized random walk with restart over Edges, seeded
// by the entity weights in personalization (the restart/teleport
// distribution π). It returns a map from memory id to the fraction of
// total visits it received. personalization need not be normalized; Walk
// normalizes it internally via NormalizeWeights.
func Walk(edges Edges, personalization map[string]float64, cfg WalkConfig) map[string]float64 {
	pi := NormalizeWeights(personalization)
	if len(pi) == 0 {
		return map[string]float64{}
	}

	seedNames, seedCumulative := buildCumulative(pi)

	steps := cfg.Steps
	if steps <= 0 {
		steps = 10
	}
	alpha := cfg.RestartAlpha
	if alpha <= 0 {
		alpha = 0.15
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	visits := make(map[string]int)
	current := sampleFrom(rng, seedNames, seedCumulative)
	totalVisits := 0

	for step := 0; step < steps; step++ {
		if rng.Float64() < alpha || current == "" {
			current = sampleFrom(rng, seedNames, seedCumulative)
		}
		memories := edges.EntityToMemories[current]
		if len(memories) == 0 {
			current = sampleFrom(rng, seedNames, seedCumulative)
			continue
		}
		mem := memories[rng.Intn(len(memories))]
		visits[mem]++
		totalVisits++

		// Move to a random entity the visited memory is about, so the next
		// step can reach a different neighborhood (entity -> memory -> entity).
		next := edges.MemoryToEntities[mem]
		if len(next) == 0 {
			current = sampleFrom(rng, seedNames, seedCumulative)
			continue
		}
		current = next[rng.Intn(len(next))]
	}

	out := make(map[string]float64, len(visits))
	if totalVisits == 0 {
		return out
	}
	for mem, count := range visits {
		out[mem] = float64(count) / float64(totalVisits)
	}
	return out
}

// RankedMemories converts a visit-fraction map into a descending-score
// slice of (memoryID, score) pairs, breaking ties by memory id for
// determinism.
func RankedMemories(scores map[string]float64) []struct {
	MemoryID string
	Score    float64
} {
	out := make([]struct {
		MemoryID string
		Score    float64
	}, 0, len(scores))
	for id, score := range scores {
		out = append(out, struct {
			MemoryID string
			Score    float64
		}{MemoryID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MemoryID < out[j].MemoryID
	})
	return out
}

func buildCumulative(pi map[string]float64) ([]string, []float64) {
	names := make([]string, 0, len(pi))
	for name := range pi {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic iteration order for the seeded RNG
	cumulative := make([]float64, len(names))
	running := 0.0
	for i, name := range names {
		running += pi[name]
		cumulative[i] = running
	}
	return names, cumulative
}

func sampleFrom(rng *rand.Rand, names []string, cumulative []float64) string {
	if len(names) == 0 {
		return ""
	}
	r := rng.Float64()
	for i, c := range cumulative {
		if r <= c {
			return names[i]
		}
	}
	return names[len(names)-1]
}
