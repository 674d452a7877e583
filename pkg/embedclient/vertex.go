package embedclient

import (
	"context"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
)

// VertexClient embeds text via Google's Generative AI embedding models.
type VertexClient struct {
	model *genai.EmbeddingModel
}

var _ EmbeddingClient = (*VertexClient)(nil)

// NewVertexClient builds a client from an API key and model name; an
// empty model name defaults to text-embedding-004.
func NewVertexClient(ctx context.Context, apiKey, modelName string) (*VertexClient, error) {
	cli, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "vertex client init", err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &VertexClient{model: cli.EmbeddingModel(modelName)}, nil
}

func (c *VertexClient) Embed(ctx context.Context, text string) (model.Embedding, error) {
	if err := validateNonEmpty(text); err != nil {
		return nil, err
	}
	resp, err := c.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "vertex embed", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errs.New(errs.KindQuery, "vertex returned no embedding")
	}
	return normalize(resp.Embedding.Values), nil
}

func (c *VertexClient) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	return embedBatchSequential(ctx, c.Embed, texts)
}
