package fusion

import "testing"

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id}
	}
	return out
}

func TestRRFEmptyInput(t *testing.T) {
	got := RRF(nil, 60)
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}

func TestRRFTiedScoresSortedStably(t *testing.T) {
	lists := [][]Item{
		items("a", "b", "c"),
		items("c", "b", "a"),
	}
	got := RRF(lists, 1)
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	// a and c mirror each other's ranks, so both score 1/2 + 1/4; b sits
	// at rank 1 in both lists for 1/3 + 1/3.
	wantAC := 1.0/2.0 + 1.0/4.0
	wantB := 1.0/3.0 + 1.0/3.0
	byID := map[string]float64{}
	for _, s := range got {
		byID[s.Item.ID] = s.Score
	}
	for _, id := range []string{"a", "c"} {
		if byID[id] < wantAC-1e-9 || byID[id] > wantAC+1e-9 {
			t.Fatalf("expected score ~%v for %s, got %v", wantAC, id, byID[id])
		}
	}
	if byID["b"] < wantB-1e-9 || byID["b"] > wantB+1e-9 {
		t.Fatalf("expected score ~%v for b, got %v", wantB, byID["b"])
	}
	// a and c are tied: first-seen order from the first list wins.
	if got[0].Item.ID != "a" || got[1].Item.ID != "c" || got[2].Item.ID != "b" {
		t.Fatalf("expected order a,c,b with the tie broken stably, got %v", got)
	}
}

func TestRRFMonotoneDescending(t *testing.T) {
	lists := [][]Item{
		items("a", "b", "c", "d"),
		items("a", "c"),
	}
	got := RRF(lists, 60)
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("output not sorted descending: %v", got)
		}
	}
	if got[0].Item.ID != "a" {
		t.Fatalf("expected item present in both lists at top rank to win, got %s", got[0].Item.ID)
	}
}

func TestWeightedRRFFavorsHigherWeightList(t *testing.T) {
	lists := [][]Item{
		items("a"),
		items("b"),
	}
	got := WeightedRRF(lists, 60, []float64{0.1, 10})
	if got[0].Item.ID != "b" {
		t.Fatalf("expected heavily-weighted list's item to rank first, got %v", got)
	}
}
