package embedclient

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/memento/pkg/model"
)

// OpenAIClient embeds text via the OpenAI embeddings API, using
// go-openai's native batch embedding call.
type OpenAIClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

var _ EmbeddingClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from an API key and model name; an
// empty model name defaults to text-embedding-3-small.
func NewOpenAIClient(apiKey string, modelName openai.EmbeddingModel) *OpenAIClient {
	if modelName == "" {
		modelName = openai.SmallEmbedding3
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: modelName}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) (model.Embedding, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return []model.Embedding{}, nil
	}
	for _, t := range texts {
		if err := validateNonEmpty(t); err != nil {
			return nil, err
		}
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Embedding, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = normalize(d.Embedding)
	}
	return out, nil
}
