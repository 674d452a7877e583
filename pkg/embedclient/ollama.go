package embedclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
)

// OllamaClient embeds text against a local Ollama server.
type OllamaClient struct {
	client *ollama.Client
	model  string
}

var _ EmbeddingClient = (*OllamaClient)(nil)

// NewOllamaClient builds a client against host (default
// http://localhost:11434) and model (default nomic-embed-text).
func NewOllamaClient(host, modelName string) (*OllamaClient, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "parse ollama host", err)
	}
	if modelName == "" {
		modelName = "nomic-embed-text"
	}
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &OllamaClient{client: ollama.NewClient(u, httpClient), model: modelName}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) (model.Embedding, error) {
	if err := validateNonEmpty(text); err != nil {
		return nil, err
	}
	res, err := c.client.Embed(ctx, &ollama.EmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "ollama embed", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, errs.New(errs.KindQuery, "ollama returned no embedding")
	}
	return normalize(res.Embeddings[0]), nil
}

func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	return embedBatchSequential(ctx, c.Embed, texts)
}
