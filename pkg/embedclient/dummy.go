package embedclient

import (
	"context"

	"github.com/Protocol-Lattice/memento/pkg/model"
)

// DummyClient is a deterministic, dependency-free embedder for tests: it
// hashes bytes into a fixed-size vector rather than calling a model.
type DummyClient struct {
	Dim int
}

var _ EmbeddingClient = (*DummyClient)(nil)

// NewDummyClient returns a DummyClient with the given dimensionality,
// defaulting to 768.
func NewDummyClient(dim int) *DummyClient {
	if dim <= 0 {
		dim = 768
	}
	return &DummyClient{Dim: dim}
}

func (c *DummyClient) Embed(_ context.Context, text string) (model.Embedding, error) {
	if err := validateNonEmpty(text); err != nil {
		return nil, err
	}
	vec := make([]float32, c.Dim)
	for i, ch := range []byte(text) {
		vec[i%c.Dim] += float32(ch) / 255.0
	}
	return normalize(vec), nil
}

func (c *DummyClient) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	return embedBatchSequential(ctx, c.Embed, texts)
}
