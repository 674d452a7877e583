// Package embedclient implements the EmbeddingClient capability over a
// set of embedding providers. Every implementation enforces the same
// EmptyInput rule and L2-normalizes its own output: the contract is the
// client's responsibility, never a downstream store's.
package embedclient

import (
	"context"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/vectormath"
)

// EmbeddingClient is the capability interface the engine depends on for
// turning text into vectors.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) (model.Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error)
}

// validateNonEmpty enforces the EmptyInput rule, shared by every
// provider so none can accidentally skip it.
func validateNonEmpty(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.ErrEmptyInput
	}
	return nil
}

func normalize(v []float32) model.Embedding {
	return model.Embedding(vectormath.L2Normalize(v))
}

// embedBatchSequential is the default EmbedBatch implementation shared by
// providers whose underlying SDK has no native batch call: embed one at a
// time through Embed, short-circuiting on the first per-element error.
// Empty input returns an empty slice, not an error.
func embedBatchSequential(ctx context.Context, embed func(context.Context, string) (model.Embedding, error), texts []string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return []model.Embedding{}, nil
	}
	out := make([]model.Embedding, len(texts))
	for i, t := range texts {
		e, err := embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
