package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// PostgresGraphStore implements GraphStore over Postgres + pgvector:
// the query embedding is passed through pgvector's text cast, and
// full-text search uses Postgres's own plainto_tsquery against an
// expression GIN index on to_tsvector('english', content).
type PostgresGraphStore struct {
	db *pgxpool.Pool
}

var _ GraphStore = (*PostgresGraphStore)(nil)
var _ SchemaInitializer = (*PostgresGraphStore)(nil)

// NewPostgresGraphStore connects to Postgres and returns a GraphStore.
func NewPostgresGraphStore(ctx context.Context, connStr string) (*PostgresGraphStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "connect to postgres", err)
	}
	return &PostgresGraphStore{db: db}, nil
}

// CreateSchema creates the memories/entities tables and their indexes if
// they don't already exist.
func (p *PostgresGraphStore) CreateSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			type TEXT NOT NULL,
			degree INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(1536),
			space TEXT NOT NULL DEFAULT '_shared',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			valid_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entities (
			memory_id TEXT REFERENCES memories(id),
			entity_id TEXT REFERENCES entities(id),
			PRIMARY KEY (memory_id, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS memories_content_fts ON memories USING gin (to_tsvector('english', content))`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return errs.Wrap(errs.KindQuery, "postgres create schema", err)
		}
	}
	return nil
}

func (p *PostgresGraphStore) SearchVector(ctx context.Context, embedding model.Embedding, k int, space string) ([]model.ScoredMemory, error) {
	jsonEmbed, _ := json.Marshal(embedding)
	rows, err := p.db.Query(ctx, `
		SELECT m.id, m.content, m.created_at, m.space, 1 - (m.embedding <-> $1::vector) AS score,
		       COALESCE(array_agg(e.name) FILTER (WHERE e.name IS NOT NULL), '{}')
		FROM memories m
		LEFT JOIN memory_entities me ON me.memory_id = m.id
		LEFT JOIN entities e ON e.id = me.entity_id
		WHERE m.space = $3
		GROUP BY m.id
		ORDER BY m.embedding <-> $1::vector
		LIMIT $2`, string(jsonEmbed), k, model.EffectiveSpace(space))
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "postgres vector search", err)
	}
	return scanScoredMemories(rows, model.SourceVector)
}

func (p *PostgresGraphStore) SearchFulltext(ctx context.Context, luceneQuery string, k int, space string) ([]model.ScoredMemory, error) {
	rows, err := p.db.Query(ctx, `
		SELECT m.id, m.content, m.created_at, m.space,
		       ts_rank(to_tsvector('english', m.content), plainto_tsquery('english', $1)) AS score,
		       COALESCE(array_agg(e.name) FILTER (WHERE e.name IS NOT NULL), '{}')
		FROM memories m
		LEFT JOIN memory_entities me ON me.memory_id = m.id
		LEFT JOIN entities e ON e.id = me.entity_id
		WHERE to_tsvector('english', m.content) @@ plainto_tsquery('english', $1) AND m.space = $3
		GROUP BY m.id
		ORDER BY score DESC
		LIMIT $2`, luceneQuery, k, model.EffectiveSpace(space))
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "postgres fulltext search", err)
	}
	return scanScoredMemories(rows, model.SourceFulltext)
}

func scanScoredMemories(rows pgx.Rows, source model.Source) ([]model.ScoredMemory, error) {
	defer rows.Close()
	var out []model.ScoredMemory
	for rows.Next() {
		var m model.Memory
		var score float64
		var aboutNames []string
		if err := rows.Scan(&m.ID, &m.Content, &m.CreatedAt, &m.Space, &score, &aboutNames); err != nil {
			return nil, errs.Wrap(errs.KindQuery, "postgres scan row", err)
		}
		out = append(out, model.ScoredMemory{Memory: m, Score: score, Source: source, AboutNames: aboutNames})
	}
	return out, rows.Err()
}

func (p *PostgresGraphStore) Neighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error) {
	rows, err := p.db.Query(ctx, `SELECT memory_id FROM memory_entities WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "postgres neighbors", err)
	}
	defer rows.Close()
	var out []Neighbor
	for rows.Next() {
		var memID string
		if err := rows.Scan(&memID); err != nil {
			return nil, errs.Wrap(errs.KindQuery, "postgres scan neighbor", err)
		}
		out = append(out, Neighbor{EntityID: entityID, MemoryID: memID})
	}
	return out, rows.Err()
}

func (p *PostgresGraphStore) GetMemoryByID(ctx context.Context, id string) (*model.Memory, error) {
	var m model.Memory
	err := p.db.QueryRow(ctx, `SELECT id, content, created_at, valid_at, space FROM memories WHERE id = $1`, id).
		Scan(&m.ID, &m.Content, &m.CreatedAt, &m.ValidAt, &m.Space)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindQuery, "postgres get memory", err)
	}
	rows, err := p.db.Query(ctx, `SELECT entity_id FROM memory_entities WHERE memory_id = $1`, id)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "postgres get memory about", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eid string
		if err := rows.Scan(&eid); err != nil {
			return nil, errs.Wrap(errs.KindQuery, "postgres scan memory about", err)
		}
		m.About = append(m.About, eid)
	}
	return &m, rows.Err()
}

func (p *PostgresGraphStore) GetEntityByName(ctx context.Context, name string) (*model.Entity, error) {
	normalized := textutil.NormalizeEntityName(name)
	var e model.Entity
	err := p.db.QueryRow(ctx, `SELECT id, name, type, degree FROM entities WHERE name = $1`, normalized).
		Scan(&e.ID, &e.Name, &e.Type, &e.Degree)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindQuery, "postgres get entity", err)
	}
	return &e, nil
}

func (p *PostgresGraphStore) Apply(ctx context.Context, plan model.WritePlan) (model.CommitStats, error) {
	var stats model.CommitStats
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return stats, errs.Wrap(errs.KindConnection, "postgres begin tx", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range plan.Entities {
		switch d.Action {
		case model.ActionCreate:
			id, genErr := textutil.GenerateID()
			if genErr != nil {
				return stats, genErr
			}
			normalized := textutil.NormalizeEntityName(d.Name)
			if _, err := tx.Exec(ctx, `INSERT INTO entities (id, name, type, degree) VALUES ($1, $2, $3, 0)
				ON CONFLICT (name) DO NOTHING`, id, normalized, d.Type); err != nil {
				return stats, errs.Wrap(errs.KindQuery, "postgres create entity", err)
			}
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
			var validAt *time.Time
			if t, ok := textutil.ParseTimestamp(d.ValidAt); ok {
				validAt = &t
			}
			tag, err := tx.Exec(ctx, `INSERT INTO memories (id, content, created_at, valid_at, space) VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING`, id, d.Content, time.Now().UTC(), validAt, model.EffectiveSpace(d.Space))
			if err != nil {
				return stats, errs.Wrap(errs.KindQuery, "postgres add memory", err)
			}
			if tag.RowsAffected() > 0 {
				stats.MemoriesAdded++
				for _, name := range d.About {
					normalized := textutil.NormalizeEntityName(name)
					edge, linkErr := tx.Exec(ctx, `INSERT INTO memory_entities (memory_id, entity_id)
						SELECT $1, id FROM entities WHERE name = $2
						ON CONFLICT DO NOTHING`, id, normalized)
					if linkErr != nil {
						return stats, errs.Wrap(errs.KindQuery, "postgres link memory", linkErr)
					}
					if edge.RowsAffected() > 0 {
						if _, degErr := tx.Exec(ctx, `UPDATE entities e SET degree =
							(SELECT count(*) FROM memory_entities me WHERE me.entity_id = e.id)
							WHERE e.name = $1`, normalized); degErr != nil {
							return stats, errs.Wrap(errs.KindQuery, "postgres recompute degree", degErr)
						}
					}
				}
			}
		case model.ActionUpdate:
			if _, err := tx.Exec(ctx, `UPDATE memories SET content = $2 WHERE id = $1`, d.TargetID, d.Content); err != nil {
				return stats, errs.Wrap(errs.KindQuery, "postgres update memory", err)
			}
			stats.MemoriesUpdated++
		case model.ActionSkip:
			stats.MemoriesSkipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, errs.Wrap(errs.KindConnection, "postgres commit", err)
	}
	return stats, nil
}

// Close releases the connection pool.
func (p *PostgresGraphStore) Close() {
	p.db.Close()
}
