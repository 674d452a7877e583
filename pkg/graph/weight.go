// Package graph computes entity weights from multi-signal evidence and
// walks the knowledge graph from those weights via a personalized random
// walk, producing memory-level scores.
package graph

import (
	"math"

	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/vectormath"
)

// WeightConfig controls the contribution of each signal to an entity's
// weight. The three components are expected to sum to 1; Normalize
// restores that if they don't.
type WeightConfig struct {
	Semantic   float64 // α_sem
	Memory     float64 // α_mem
	Structural float64 // α_struct
}

// Normalize rescales the config so its components sum to 1. A zero-sum
// config falls back to an even split.
func (c WeightConfig) Normalize() WeightConfig {
	total := c.Semantic + c.Memory + c.Structural
	if total <= 0 {
		return WeightConfig{Semantic: 1.0 / 3, Memory: 1.0 / 3, Structural: 1.0 / 3}
	}
	return WeightConfig{
		Semantic:   c.Semantic / total,
		Memory:     c.Memory / total,
		Structural: c.Structural / total,
	}
}

// SeedMemory is a prior memory used as evidence for the "memory" signal: it
// links to zero or more candidate entity names and carries its own
// retrieval score.
type SeedMemory struct {
	Embedding model.Embedding
	Score     float64
	About     []string // entity names this memory references
}

// Weight computes the per-entity weight map: for
// each candidate entity e, weight(e) = α_sem·semantic + α_mem·mem +
// α_struct·struct, where struct log-dampens raw degree so hub entities
// don't dominate (a 1000× degree ratio compresses to ≈4×). Empty input
// yields an empty map.
func Weight(entities []model.Entity, seeds []SeedMemory, query model.Embedding, cfg WeightConfig) map[string]float64 {
	if len(entities) == 0 {
		return map[string]float64{}
	}
	cfg = cfg.Normalize()

	maxDegree := uint32(0)
	for _, e := range entities {
		if e.Degree > maxDegree {
			maxDegree = e.Degree
		}
	}

	memRaw := make(map[string]float64, len(entities))
	for _, e := range entities {
		var sum float64
		for _, seed := range seeds {
			if !containsName(seed.About, e.Name) {
				continue
			}
			sum += seed.Score * vectormath.Cosine(seed.Embedding, query)
		}
		memRaw[e.Name] = sum
	}
	memNorm := normalizeToUnitRangeByName(memRaw)

	out := make(map[string]float64, len(entities))
	for _, e := range entities {
		semantic := 0.0
		if len(e.Embedding) > 0 {
			semantic = vectormath.Cosine(e.Embedding, query)
		}
		structural := 0.0
		if maxDegree > 0 {
			structural = math.Log(1+float64(e.Degree)) / math.Log(1+float64(maxDegree))
		}
		out[e.Name] = cfg.Semantic*semantic + cfg.Memory*memNorm[e.Name] + cfg.Structural*structural
	}
	return out
}

// NormalizeWeights rescales w so its values sum to 1, preserving ratios. A
// non-positive sum yields an empty map.
func NormalizeWeights(w map[string]float64) map[string]float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v / total
	}
	return out
}

func containsName(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

func normalizeToUnitRangeByName(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return map[string]float64{}
	}
	names := make([]string, 0, len(raw))
	xs := make([]float64, 0, len(raw))
	for name, v := range raw {
		names = append(names, name)
		xs = append(xs, v)
	}
	normalized := vectormath.NormalizeToUnitRange(xs)
	out := make(map[string]float64, len(raw))
	for i, name := range names {
		out[name] = normalized[i]
	}
	return out
}
