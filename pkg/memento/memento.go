// Package memento is the top-level facade wiring retrieval, consolidation
// and injection over a single GraphStore: a thin re-export of the
// subpackages' public API plus one orchestrating type (Memento) that most
// callers only need construct once.
package memento

import (
	"context"
	"log"
	"os"

	"github.com/Protocol-Lattice/memento/pkg/config"
	"github.com/Protocol-Lattice/memento/pkg/consolidate"
	"github.com/Protocol-Lattice/memento/pkg/embedclient"
	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/inject"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/retrieval"
	"github.com/Protocol-Lattice/memento/pkg/store"
)

// errNoLLM is returned by Consolidate when Memento was built without an
// LLMClient, since the pipeline has nothing to extract with.
var errNoLLM = errs.New(errs.KindQuery, "memento: consolidation requires an LLMClient")

// Type aliases preserving each subpackage's public surface under one
// import.
type (
	Config          = config.Config
	Embedding       = model.Embedding
	Entity          = model.Entity
	Memory          = model.Memory
	ScoredMemory    = model.ScoredMemory
	RetrievalQuery  = model.RetrievalQuery
	RetrievalResult = model.RetrievalResult
	SourceWeights   = model.SourceWeights
	EntityDecision  = model.EntityDecision
	MemoryDecision  = model.MemoryDecision
	WritePlan       = model.WritePlan
	CommitStats     = model.CommitStats

	GraphStore        = store.GraphStore
	SchemaInitializer = store.SchemaInitializer
	Pruner            = store.Pruner
	InMemoryStore     = store.InMemoryStore

	EmbeddingClient = embedclient.EmbeddingClient
	LLMClient       = llmclient.LLMClient

	HybridRetriever  = retrieval.HybridRetriever
	ExtractionStage  = consolidate.ExtractionStage
	ResolutionStage  = consolidate.ResolutionStage
	Pipeline         = consolidate.Pipeline
	ConsolidateInput = consolidate.Input
)

var (
	DefaultConfig    = config.Default
	NewInMemoryStore = store.NewInMemoryStore

	NewHybridRetriever     = retrieval.New
	NewExtractionStage     = consolidate.NewExtractionStage
	NewResolutionStage     = consolidate.NewResolutionStage
	NewConsolidatePipeline = consolidate.NewPipeline

	Render = inject.Render
	Inject = inject.Inject
)

// Memento wires a GraphStore, an EmbeddingClient and an LLMClient into
// one retrieval/consolidation/injection engine. It holds no
// request-scoped state and is safe for concurrent use.
type Memento struct {
	store     store.GraphStore
	embedder  embedclient.EmbeddingClient
	retriever *retrieval.HybridRetriever
	pipeline  *consolidate.Pipeline
	cfg       config.Config
	logger    *log.Logger
}

// New wires a Memento from its three capability dependencies. llm may be
// nil if the caller only intends to call Retrieve/HandleRequest, never
// Consolidate.
func New(s store.GraphStore, embedder embedclient.EmbeddingClient, llm llmclient.LLMClient, cfg config.Config) *Memento {
	cfg = cfg.WithDefaults()
	retriever := retrieval.New(s, cfg)

	var pipeline *consolidate.Pipeline
	if llm != nil {
		extraction := consolidate.NewExtractionStage(llm, cfg.Retry.MaxRetries)
		resolution := consolidate.NewResolutionStage(llm, s, cfg.Retry.MaxRetries)
		pipeline = consolidate.NewPipeline(retriever, extraction, resolution)
	}

	return &Memento{
		store:     s,
		embedder:  embedder,
		retriever: retriever,
		pipeline:  pipeline,
		cfg:       cfg,
		logger:    log.New(os.Stderr, "memento: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger and propagates it to the
// underlying retriever.
func (m *Memento) WithLogger(l *log.Logger) *Memento {
	if l == nil {
		return m
	}
	m.logger = l
	m.retriever.WithLogger(l)
	return m
}

// Retrieve embeds text and runs the hybrid retriever against it, scoped to
// space (empty string means model.DefaultSpace).
func (m *Memento) Retrieve(ctx context.Context, text string, k int, weights model.SourceWeights, space string) (model.RetrievalResult, error) {
	emb, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return model.RetrievalResult{}, err
	}
	return m.retriever.Retrieve(ctx, model.RetrievalQuery{
		Text:      text,
		Embedding: emb,
		K:         uint32(k),
		Weights:   weights,
		Space:     space,
	})
}

// HandleRequest implements the request path: embed the last user turn,
// retrieve, inject, and return the rewritten body. A retrieval failure is
// a soft failure: the body is forwarded unchanged and the error is
// logged, never returned, so the proxy stays available.
func (m *Memento) HandleRequest(ctx context.Context, body map[string]any, space string) map[string]any {
	text := lastUserText(body)
	if text == "" {
		return body
	}
	result, err := m.Retrieve(ctx, text, m.cfg.Retrieval.DefaultK, model.SourceWeights{Vector: 1, Fulltext: 1, Graph: 1}, space)
	if err != nil {
		m.logger.Printf("retrieval failed, forwarding without injection: %v", err)
		return body
	}
	return inject.Inject(body, result)
}

// Consolidate embeds note and runs the two-branch consolidation pipeline,
// returning the resulting WritePlan without applying it. Callers commit
// via GraphStore.Apply.
func (m *Memento) Consolidate(ctx context.Context, note string, existingUserDesc string, space string) (model.WritePlan, error) {
	if m.pipeline == nil {
		return model.WritePlan{}, errNoLLM
	}
	emb, err := m.embedder.Embed(ctx, note)
	if err != nil {
		return model.WritePlan{}, err
	}
	return m.pipeline.Run(ctx, m.store, consolidate.Input{
		Note:             note,
		NoteEmbedding:    emb,
		Space:            space,
		ExistingUserDesc: existingUserDesc,
		ContextK:         m.cfg.Retrieval.DefaultK,
	})
}

// Apply commits plan to the underlying store.
func (m *Memento) Apply(ctx context.Context, plan model.WritePlan) (model.CommitStats, error) {
	return m.store.Apply(ctx, plan)
}

func lastUserText(body map[string]any) string {
	messages, ok := body["messages"].([]any)
	if !ok {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role != "user" {
			continue
		}
		switch c := msg["content"].(type) {
		case string:
			return c
		case []any:
			for _, block := range c {
				b, ok := block.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := b["type"].(string); t == "text" {
					if text, _ := b["text"].(string); text != "" {
						return text
					}
				}
			}
		}
		return ""
	}
	return ""
}
