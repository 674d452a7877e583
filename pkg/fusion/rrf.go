// Package fusion implements Reciprocal Rank Fusion, the kernel the hybrid
// retriever (pkg/retrieval) uses to merge independently-ranked lists of
// memories into one ranked list.
package fusion

import "sort"

// Item is anything RRF can rank: an identity to fuse on, plus whatever
// payload the caller wants carried through.
type Item struct {
	ID      string
	Payload any
}

// Scored is a fused item with its accumulated RRF score.
type Scored struct {
	Item  Item
	Score float64
}

// RRF fuses multiple ranked lists into one, scoring each item by
// Σ 1/(k + rank + 1) across every list it appears in (rank is 0-based).
// Ties are broken by first-seen order across the input lists, so the
// result is a deterministic function of its input. k is typically 60 in
// production but any positive value works; k <= 0 is not rejected here or
// by the retriever (config.WithDefaults only replaces a zero k); this
// function trusts its input.
func RRF(lists [][]Item, k float64) []Scored {
	scores := make(map[string]float64)
	firstSeen := make(map[string]int)
	payload := make(map[string]any)
	order := 0

	for _, list := range lists {
		for rank, item := range list {
			if _, ok := firstSeen[item.ID]; !ok {
				firstSeen[item.ID] = order
				payload[item.ID] = item.Payload
				order++
			}
			scores[item.ID] += 1.0 / (k + float64(rank) + 1.0)
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, score := range scores {
		out = append(out, Scored{Item: Item{ID: id, Payload: payload[id]}, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return firstSeen[out[i].Item.ID] < firstSeen[out[j].Item.ID]
	})
	return out
}

// WeightedRRF is RRF with a per-list multiplier applied to each list's
// contribution before accumulation, used by the hybrid retriever to favor
// one signal (e.g. graph walk) over another after distribution alignment.
// weights must have the same length as lists; a missing or zero weight
// defaults to 1.
func WeightedRRF(lists [][]Item, k float64, weights []float64) []Scored {
	scores := make(map[string]float64)
	firstSeen := make(map[string]int)
	payload := make(map[string]any)
	order := 0

	for li, list := range lists {
		weight := 1.0
		if li < len(weights) && weights[li] != 0 {
			weight = weights[li]
		}
		for rank, item := range list {
			if _, ok := firstSeen[item.ID]; !ok {
				firstSeen[item.ID] = order
				payload[item.ID] = item.Payload
				order++
			}
			scores[item.ID] += weight / (k + float64(rank) + 1.0)
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, score := range scores {
		out = append(out, Scored{Item: Item{ID: id, Payload: payload[id]}, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return firstSeen[out[i].Item.ID] < firstSeen[out[j].Item.ID]
	})
	return out
}
