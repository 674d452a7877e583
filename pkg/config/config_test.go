package config

import "testing"

func TestDefaultIsInternallyConsistent(t *testing.T) {
	d := Default()
	if d.Retry.MaxRetries <= 0 {
		t.Fatal("expected positive default max retries")
	}
	if d.Retrieval.Weights.Sum() <= 0 {
		t.Fatal("expected positive default source weight sum")
	}
}

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	var c Config
	filled := c.WithDefaults()
	d := Default()
	if filled.Retrieval.DefaultK != d.Retrieval.DefaultK {
		t.Fatalf("expected DefaultK filled to %d, got %d", d.Retrieval.DefaultK, filled.Retrieval.DefaultK)
	}
	if filled.Walk.Steps != d.Walk.Steps {
		t.Fatalf("expected Walk.Steps filled to %d, got %d", d.Walk.Steps, filled.Walk.Steps)
	}
	if filled.DefaultSpace != d.DefaultSpace {
		t.Fatalf("expected DefaultSpace filled, got %q", filled.DefaultSpace)
	}
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Retrieval: RetrievalConfig{DefaultK: 25}}
	filled := c.WithDefaults()
	if filled.Retrieval.DefaultK != 25 {
		t.Fatalf("expected explicit DefaultK=25 preserved, got %d", filled.Retrieval.DefaultK)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error loading a missing file")
	}
}
