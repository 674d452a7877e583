package embedclient

import (
	"context"
	"testing"
)

func TestDummyClientEmbedRejectsEmpty(t *testing.T) {
	c := NewDummyClient(0)
	if _, err := c.Embed(context.Background(), "   "); err == nil {
		t.Fatal("expected error for whitespace-only input")
	}
}

func TestDummyClientEmbedIsL2Normalized(t *testing.T) {
	c := NewDummyClient(0)
	v, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 0.999 || sumSq > 1.001 {
		t.Fatalf("expected unit norm, got sumSq=%v", sumSq)
	}
}

func TestDummyClientEmbedBatchEmpty(t *testing.T) {
	c := NewDummyClient(0)
	out, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}

func TestDummyClientEmbedBatchRejectsAnyEmptyElement(t *testing.T) {
	c := NewDummyClient(0)
	if _, err := c.EmbedBatch(context.Background(), []string{"ok", ""}); err == nil {
		t.Fatal("expected error when any element is empty")
	}
}

func TestDummyClientEmbedDeterministic(t *testing.T) {
	c := NewDummyClient(0)
	a, _ := c.Embed(context.Background(), "same text")
	b, _ := c.Embed(context.Background(), "same text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic embedding, got %v vs %v", a, b)
		}
	}
}
