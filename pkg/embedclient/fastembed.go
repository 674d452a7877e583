package embedclient

import (
	"context"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
)

// FastEmbedClient embeds text in-process via fastembed-go, no network
// hop required.
type FastEmbedClient struct {
	engine    *fastembed.FlagEmbedding
	batchSize int
}

var _ EmbeddingClient = (*FastEmbedClient)(nil)

// NewFastEmbedClient initializes the local model, capping batch size by
// available CPUs.
func NewFastEmbedClient(cacheDir string, maxLength int) (*FastEmbedClient, error) {
	engine, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{CacheDir: cacheDir, MaxLength: maxLength})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "fastembed init", err)
	}
	bs := 64
	if ceiling := 4 * runtime.GOMAXPROCS(0); bs > ceiling {
		bs = ceiling
	}
	return &FastEmbedClient{engine: engine, batchSize: bs}, nil
}

// Close releases the underlying native model handle.
func (c *FastEmbedClient) Close() error {
	if c.engine != nil {
		c.engine.Destroy()
	}
	return nil
}

func (c *FastEmbedClient) Embed(ctx context.Context, text string) (model.Embedding, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *FastEmbedClient) EmbedBatch(_ context.Context, texts []string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return []model.Embedding{}, nil
	}
	for _, t := range texts {
		if err := validateNonEmpty(t); err != nil {
			return nil, err
		}
	}
	raw, err := c.engine.PassageEmbed(texts, c.batchSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "fastembed passage embed", err)
	}
	out := make([]model.Embedding, len(raw))
	for i, v := range raw {
		out[i] = normalize(v)
	}
	return out, nil
}
