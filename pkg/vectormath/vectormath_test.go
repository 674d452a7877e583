package vectormath

import "testing"

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestCosineKnownVectors(t *testing.T) {
	got := Cosine([]float32{0.6, 0.8, 0}, []float32{0.8, 0.6, 0})
	if !almostEqual(got, 0.96, 1e-6) {
		t.Fatalf("expected ~0.96, got %v", got)
	}
}

func TestCosineSelfAndOpposite(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := Cosine(v, v); !almostEqual(got, 1, 1e-9) {
		t.Fatalf("cosine(v, v) = %v, want 1", got)
	}
	neg := []float32{-1, -2, -3}
	if got := Cosine(v, neg); !almostEqual(got, -1, 1e-9) {
		t.Fatalf("cosine(v, -v) = %v, want -1", got)
	}
}

func TestCosineZeroAndMismatch(t *testing.T) {
	if got := Cosine([]float32{1, 2}, []float32{0, 0}); got != 0 {
		t.Fatalf("cosine with zero vector = %v, want 0", got)
	}
	if got := Cosine([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("cosine with mismatched lengths = %v, want 0", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Fatalf("cosine of empty vectors = %v, want 0", got)
	}
}

func TestL2NormalizeUnitNorm(t *testing.T) {
	got := L2Normalize([]float32{3, 4, 0})
	want := []float32{0.6, 0.8, 0}
	for i := range want {
		if !almostEqual(float64(got[i]), float64(want[i]), 1e-6) {
			t.Fatalf("L2Normalize = %v, want %v", got, want)
		}
	}
}

func TestL2NormalizeZeroVectorUnchanged(t *testing.T) {
	in := []float32{0, 0, 0}
	got := L2Normalize(in)
	for _, x := range got {
		if x != 0 {
			t.Fatalf("expected zero vector preserved, got %v", got)
		}
	}
}

func TestL2NormalizeDoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}
	cp := append([]float32{}, in...)
	_ = L2Normalize(in)
	for i := range in {
		if in[i] != cp[i] {
			t.Fatalf("L2Normalize mutated its input: %v", in)
		}
	}
}

func TestNormalizeToUnitRange(t *testing.T) {
	got := NormalizeToUnitRange([]float64{1, 5, 3})
	if got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected min->0 max->1, got %v", got)
	}
}

func TestNormalizeToUnitRangeConstant(t *testing.T) {
	got := NormalizeToUnitRange([]float64{7, 7, 7})
	for _, x := range got {
		if x != 0.5 {
			t.Fatalf("expected all 0.5 for constant input, got %v", got)
		}
	}
}

func TestNormalizeToUnitRangeEmpty(t *testing.T) {
	got := NormalizeToUnitRange(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty output for empty input, got %v", got)
	}
}

func TestAlignDistributionPreservesOrder(t *testing.T) {
	xs := []float64{1, 5, 3, 9}
	out := AlignDistribution(xs, Target{Mu: 0.5, Sigma: 0.2})
	for i := 1; i < len(xs); i++ {
		for j := 0; j < i; j++ {
			if xs[j] < xs[i] && out[j] >= out[i] {
				t.Fatalf("order not preserved: xs=%v out=%v", xs, out)
			}
		}
	}
}

func TestAlignDistributionDegenerateInput(t *testing.T) {
	target := Target{Mu: 0.5, Sigma: 0.2}
	for _, xs := range [][]float64{{}, {3}, {4, 4, 4}} {
		out := AlignDistribution(xs, target)
		for _, v := range out {
			if v != target.Mu {
				t.Fatalf("degenerate input %v: expected all %v, got %v", xs, target.Mu, out)
			}
		}
	}
}
