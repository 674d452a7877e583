// Package store defines the GraphStore capability boundary the core
// retrieval/consolidation engine consumes, plus a handful of concrete
// adapters. The core owns no persistence; every adapter here is a
// narrow, externally-pluggable implementation of the same interface.
package store

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/memento/pkg/model"
)

// Neighbor is one hop out of an entity: the entity on the far end (if the
// edge is entity-to-entity) or the memory the entity is linked to.
type Neighbor struct {
	EntityID string
	MemoryID string
}

// GraphStore is the single capability interface the engine depends on for
// persistence. Implementations own the storage format; the core
// only ever sees Entity/Memory/ScoredMemory/WritePlan values.
type GraphStore interface {
	// space scopes the search to memories in that namespace; "" means
	// model.DefaultSpace (see model.EffectiveSpace). Neighbors is not
	// space-scoped itself since Entity carries no Space of its own; a
	// caller resolving a Neighbor's memory filters on the returned
	// Memory.Space instead.
	SearchVector(ctx context.Context, embedding model.Embedding, k int, space string) ([]model.ScoredMemory, error)
	SearchFulltext(ctx context.Context, luceneQuery string, k int, space string) ([]model.ScoredMemory, error)
	Neighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error)
	GetEntityByName(ctx context.Context, name string) (*model.Entity, error)
	// GetMemoryByID resolves a memory id to its full value: the graph
	// walker (pkg/graph, pkg/retrieval) only ever learns memory ids from
	// Neighbors, never full Memory values, so they must be resolved before
	// they can be scored and fused alongside the vector/fulltext branches.
	GetMemoryByID(ctx context.Context, id string) (*model.Memory, error)
	Apply(ctx context.Context, plan model.WritePlan) (model.CommitStats, error)
}

// SchemaInitializer is implemented by stores that need an explicit
// bootstrap step (indexes, constraints) before first use.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}

// Pruner is an optional housekeeping capability: eviction of memories
// older than a cutoff. InMemoryStore implements it; the network-backed
// stores may add it the same way. The core pipeline never calls it; it's
// exposed for callers that want housekeeping.
type Pruner interface {
	Prune(ctx context.Context, olderThanDays int) (evicted int, err error)
}

// ErrEntityNotFound is not returned by the stores in this package:
// GetEntityByName reports a missing entity as (nil, nil).
var ErrEntityNotFound = errors.New("store: entity not found")
