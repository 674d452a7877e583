package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// neo4jDriver/neo4jSession/neo4jTransaction/neo4jResult/neo4jRecord are a
// narrow seam over the official Neo4j driver, so Neo4jGraphStore can run
// against fakes implementing these interfaces, while the real
// github.com/neo4j/neo4j-go-driver/v5 binding lives behind the "neo4j"
// build tag in neo4j_driver.go so the default build never needs it linked.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jAccessMode controls whether a session is opened for read or write.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal session configuration the store needs.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// Neo4jGraphStore persists entities and memories as Cypher-backed graph
// nodes, with vector and fulltext index queries delegated to Neo4j's own
// vector/fulltext index support (assumed pre-created by CreateSchema).
type Neo4jGraphStore struct {
	driver   neo4jDriver
	database string
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
var _ SchemaInitializer = (*Neo4jGraphStore)(nil)

// NewNeo4jGraphStore constructs a store over an already-connected driver
// seam (see WrapNeo4jDriver in neo4j_driver.go for the real binding).
func NewNeo4jGraphStore(driver neo4jDriver, database string) (*Neo4jGraphStore, error) {
	if driver == nil {
		return nil, errs.New(errs.KindConnection, "neo4j driver is nil")
	}
	return &Neo4jGraphStore{driver: driver, database: database}, nil
}

// CreateSchema creates the vector index, fulltext index, and uniqueness
// constraints the store's queries assume exist. Every statement uses
// IF NOT EXISTS, so re-running it is harmless; any error is returned as a
// query error.
func (s *Neo4jGraphStore) CreateSchema(ctx context.Context) error {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	queries := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE",
		"CREATE FULLTEXT INDEX memoryContent IF NOT EXISTS FOR (m:Memory) ON EACH [m.content]",
		"CREATE VECTOR INDEX memoryEmbedding IF NOT EXISTS FOR (m:Memory) ON (m.embedding)",
	}
	for _, q := range queries {
		res, runErr := session.Run(ctx, q, nil)
		if runErr != nil {
			return errs.Wrap(errs.KindQuery, "neo4j schema query", runErr)
		}
		if res != nil {
			_ = res.Close(ctx)
		}
	}
	return nil
}

func (s *Neo4jGraphStore) SearchVector(ctx context.Context, embedding model.Embedding, k int, space string) ([]model.ScoredMemory, error) {
	const query = `
CALL db.index.vector.queryNodes('memoryEmbedding', $k, $embedding)
YIELD node, score
WHERE node.space = $space
OPTIONAL MATCH (node)<-[:ABOUT]-(e:Entity)
RETURN node.id AS id, node.content AS content, node.created_at AS created_at, node.space AS space, score AS score, collect(e.name) AS about_names`
	return s.runScoredQuery(ctx, query, map[string]any{"embedding": []float32(embedding), "k": k, "space": model.EffectiveSpace(space)}, model.SourceVector)
}

func (s *Neo4jGraphStore) SearchFulltext(ctx context.Context, luceneQuery string, k int, space string) ([]model.ScoredMemory, error) {
	const query = `
CALL db.index.fulltext.queryNodes('memoryContent', $query) YIELD node, score
WITH node, score WHERE node.space = $space LIMIT $k
OPTIONAL MATCH (node)<-[:ABOUT]-(e:Entity)
RETURN node.id AS id, node.content AS content, node.created_at AS created_at, node.space AS space, score AS score, collect(e.name) AS about_names`
	return s.runScoredQuery(ctx, query, map[string]any{"query": luceneQuery, "k": k, "space": model.EffectiveSpace(space)}, model.SourceFulltext)
}

func (s *Neo4jGraphStore) runScoredQuery(ctx context.Context, query string, params map[string]any, source model.Source) ([]model.ScoredMemory, error) {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "neo4j run", err)
	}
	defer res.Close(ctx)

	var out []model.ScoredMemory
	for res.Next(ctx) {
		rec := res.Record()
		id, _ := rec.Get("id")
		content, _ := rec.Get("content")
		createdAt, _ := rec.Get("created_at")
		space, _ := rec.Get("space")
		score, _ := rec.Get("score")
		aboutNames, _ := rec.Get("about_names")
		out = append(out, model.ScoredMemory{
			Memory: model.Memory{
				ID:        fmt.Sprint(id),
				Content:   fmt.Sprint(content),
				CreatedAt: parseNeo4jTime(createdAt),
				Space:     fmt.Sprint(space),
			},
			Score:      toFloat64(score),
			Source:     source,
			AboutNames: toStringSlice(aboutNames),
		})
	}
	if err := res.Err(); err != nil {
		return nil, errs.Wrap(errs.KindQuery, "neo4j result iteration", err)
	}
	return out, nil
}

func (s *Neo4jGraphStore) Neighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error) {
	if depth <= 0 {
		depth = 1
	}
	const query = `MATCH (e:Entity {id: $id})-[:ABOUT*1..%d]-(m:Memory) RETURN DISTINCT m.id AS memory_id`
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, fmt.Sprintf(query, depth), map[string]any{"id": entityID})
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "neo4j run", err)
	}
	defer res.Close(ctx)

	var out []Neighbor
	for res.Next(ctx) {
		memID, _ := res.Record().Get("memory_id")
		out = append(out, Neighbor{EntityID: entityID, MemoryID: fmt.Sprint(memID)})
	}
	return out, res.Err()
}

func (s *Neo4jGraphStore) GetMemoryByID(ctx context.Context, id string) (*model.Memory, error) {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`MATCH (m:Memory {id: $id}) OPTIONAL MATCH (m)<-[:ABOUT]-(e:Entity)
RETURN m.id AS id, m.content AS content, m.created_at AS created_at, m.space AS space, collect(e.id) AS about`,
		map[string]any{"id": id})
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "neo4j get memory", err)
	}
	defer res.Close(ctx)

	if !res.Next(ctx) {
		return nil, nil
	}
	rec := res.Record()
	content, _ := rec.Get("content")
	createdAt, _ := rec.Get("created_at")
	space, _ := rec.Get("space")
	about, _ := rec.Get("about")
	return &model.Memory{
		ID:        id,
		Content:   fmt.Sprint(content),
		CreatedAt: parseNeo4jTime(createdAt),
		Space:     fmt.Sprint(space),
		About:     toStringSlice(about),
	}, res.Err()
}

func (s *Neo4jGraphStore) GetEntityByName(ctx context.Context, name string) (*model.Entity, error) {
	normalized := textutil.NormalizeEntityName(name)
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, "MATCH (e:Entity {name: $name}) RETURN e.id AS id, e.name AS name, e.type AS type, e.degree AS degree", map[string]any{"name": normalized})
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "neo4j run", err)
	}
	defer res.Close(ctx)

	if !res.Next(ctx) {
		return nil, nil
	}
	rec := res.Record()
	id, _ := rec.Get("id")
	typ, _ := rec.Get("type")
	degree, _ := rec.Get("degree")
	return &model.Entity{ID: fmt.Sprint(id), Name: normalized, Type: fmt.Sprint(typ), Degree: uint32(toFloat64(degree))}, nil
}

func (s *Neo4jGraphStore) Apply(ctx context.Context, plan model.WritePlan) (model.CommitStats, error) {
	var stats model.CommitStats
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return stats, errs.Wrap(errs.KindConnection, "neo4j new session", err)
	}
	defer session.Close(ctx)

	for _, d := range plan.Entities {
		switch d.Action {
		case model.ActionCreate:
			id, genErr := textutil.GenerateID()
			if genErr != nil {
				return stats, genErr
			}
			normalized := textutil.NormalizeEntityName(d.Name)
			res, runErr := session.Run(ctx,
				"MERGE (e:Entity {name: $name}) ON CREATE SET e.id = $id, e.type = $type, e.degree = 0",
				map[string]any{"name": normalized, "id": id, "type": d.Type})
			if runErr != nil {
				return stats, errs.Wrap(errs.KindQuery, "neo4j create entity", runErr)
			}
			_ = res.Close(ctx)
			stats.EntitiesCreated++
		case model.ActionMatch:
			stats.EntitiesMatched++
		}
	}

	for _, d := range plan.Memories {
		switch d.Action {
		case model.ActionAdd:
			id := d.ID
			if id == "" {
				var genErr error
				id, genErr = textutil.GenerateID()
				if genErr != nil {
					return stats, genErr
				}
			}
			// OPTIONAL MATCH before the MERGE tells a replayed add from a
			// genuine first write: the MERGE alone can't distinguish
			// "created" from "already existed by id".
			params := map[string]any{
				"id":         id,
				"content":    d.Content,
				"space":      model.EffectiveSpace(d.Space),
				"created_at": time.Now().UTC().Format(time.RFC3339Nano),
				"valid_at":   nil,
			}
			if t, ok := textutil.ParseTimestamp(d.ValidAt); ok {
				params["valid_at"] = t.UTC().Format(time.RFC3339Nano)
			}
			res, runErr := session.Run(ctx,
				`OPTIONAL MATCH (existing:Memory {id: $id})
WITH existing
MERGE (m:Memory {id: $id}) ON CREATE SET m.content = $content, m.space = $space, m.created_at = $created_at, m.valid_at = $valid_at
RETURN existing IS NULL AS created`,
				params)
			if runErr != nil {
				return stats, errs.Wrap(errs.KindQuery, "neo4j add memory", runErr)
			}
			created := false
			if res.Next(ctx) {
				if c, _ := res.Record().Get("created"); c == true {
					created = true
				}
			}
			_ = res.Close(ctx)
			if created {
				stats.MemoriesAdded++
				if len(d.About) > 0 {
					names := make([]string, 0, len(d.About))
					for _, name := range d.About {
						names = append(names, textutil.NormalizeEntityName(name))
					}
					// Degree is recomputed from the edge set rather than
					// incremented, so a concurrent writer can't skew it.
					linkRes, linkErr := session.Run(ctx,
						`MATCH (m:Memory {id: $id})
UNWIND $names AS name
MATCH (e:Entity {name: name})
MERGE (e)-[:ABOUT]->(m)
WITH DISTINCT e
MATCH (e)-[:ABOUT]->(x:Memory)
WITH e, count(x) AS deg
SET e.degree = deg`,
						map[string]any{"id": id, "names": names})
					if linkErr != nil {
						return stats, errs.Wrap(errs.KindQuery, "neo4j link memory", linkErr)
					}
					_ = linkRes.Close(ctx)
				}
			}
		case model.ActionUpdate:
			res, runErr := session.Run(ctx, "MATCH (m:Memory {id: $id}) SET m.content = $content", map[string]any{"id": d.TargetID, "content": d.Content})
			if runErr != nil {
				return stats, errs.Wrap(errs.KindQuery, "neo4j update memory", runErr)
			}
			_ = res.Close(ctx)
			stats.MemoriesUpdated++
		case model.ActionSkip:
			stats.MemoriesSkipped++
		}
	}

	return stats, nil
}

func parseNeo4jTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
