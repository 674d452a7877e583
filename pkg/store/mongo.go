package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// MongoGraphStore implements GraphStore over MongoDB: vector search
// via Atlas's $vectorSearch aggregation stage, full-text via a $text
// index, entities and memories as separate collections linked by id.
type MongoGraphStore struct {
	client   *mongo.Client
	memories *mongo.Collection
	entities *mongo.Collection
}

var _ GraphStore = (*MongoGraphStore)(nil)

// NewMongoGraphStore connects to MongoDB and returns a GraphStore backed
// by the given database.
func NewMongoGraphStore(ctx context.Context, uri, database string) (*MongoGraphStore, error) {
	if uri == "" {
		return nil, errs.New(errs.KindConnection, "mongo uri is required")
	}
	if database == "" {
		return nil, errs.New(errs.KindConnection, "mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "mongo connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errs.Wrap(errs.KindConnection, "mongo ping", err)
	}
	db := client.Database(database)
	return &MongoGraphStore{
		client:   client,
		memories: db.Collection("memories"),
		entities: db.Collection("entities"),
	}, nil
}

type mongoMemoryDoc struct {
	ID         string     `bson:"_id"`
	Content    string     `bson:"content"`
	Embedding  []float64  `bson:"embedding"`
	Space      string     `bson:"space"`
	CreatedAt  time.Time  `bson:"created_at"`
	ValidAt    *time.Time `bson:"valid_at,omitempty"`
	AboutIDs   []string   `bson:"about_ids"`
	AboutNames []string   `bson:"about_names"`
}

func (d mongoMemoryDoc) toMemory() model.Memory {
	embedding := make(model.Embedding, len(d.Embedding))
	for i, v := range d.Embedding {
		embedding[i] = float32(v)
	}
	return model.Memory{ID: d.ID, Content: d.Content, Embedding: embedding, Space: d.Space, CreatedAt: d.CreatedAt, ValidAt: d.ValidAt, About: d.AboutIDs}
}

func (m *MongoGraphStore) SearchVector(ctx context.Context, embedding model.Embedding, k int, space string) ([]model.ScoredMemory, error) {
	queryVector := make([]float64, len(embedding))
	for i, v := range embedding {
		queryVector[i] = float64(v)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: "vector_index"},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: int64(k * 10)},
			{Key: "limit", Value: int64(k)},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "space", Value: model.EffectiveSpace(space)}}}},
		{{Key: "$addFields", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}}}}},
	}
	cursor, err := m.memories.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "mongo vector search", err)
	}
	defer cursor.Close(ctx)
	return decodeScoredMemories(ctx, cursor, model.SourceVector)
}

func (m *MongoGraphStore) SearchFulltext(ctx context.Context, luceneQuery string, k int, space string) ([]model.ScoredMemory, error) {
	filter := bson.M{"$text": bson.M{"$search": unescapeLucene(luceneQuery)}, "space": model.EffectiveSpace(space)}
	findOpts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(k))
	cursor, err := m.memories.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "mongo fulltext search", err)
	}
	defer cursor.Close(ctx)
	return decodeScoredMemories(ctx, cursor, model.SourceFulltext)
}

func decodeScoredMemories(ctx context.Context, cursor *mongo.Cursor, source model.Source) ([]model.ScoredMemory, error) {
	var out []model.ScoredMemory
	for cursor.Next(ctx) {
		var doc struct {
			mongoMemoryDoc `bson:",inline"`
			Score          float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, errs.Wrap(errs.KindQuery, "mongo decode", err)
		}
		out = append(out, model.ScoredMemory{
			Memory:     doc.toMemory(),
			Score:      doc.Score,
			Source:     source,
			AboutNames: doc.AboutNames,
		})
	}
	return out, cursor.Err()
}

func (m *MongoGraphStore) Neighbors(ctx context.Context, entityID string, _ int) ([]Neighbor, error) {
	cursor, err := m.memories.Find(ctx, bson.M{"about_ids": entityID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "mongo neighbors", err)
	}
	defer cursor.Close(ctx)
	var out []Neighbor
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, errs.Wrap(errs.KindQuery, "mongo decode neighbor", err)
		}
		out = append(out, Neighbor{EntityID: entityID, MemoryID: doc.ID})
	}
	return out, cursor.Err()
}

func (m *MongoGraphStore) GetMemoryByID(ctx context.Context, id string) (*model.Memory, error) {
	var doc mongoMemoryDoc
	err := m.memories.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "mongo get memory", err)
	}
	mem := doc.toMemory()
	return &mem, nil
}

type mongoEntityDoc struct {
	ID     string `bson:"_id"`
	Name   string `bson:"name"`
	Type   string `bson:"type"`
	Degree uint32 `bson:"degree"`
}

func (m *MongoGraphStore) GetEntityByName(ctx context.Context, name string) (*model.Entity, error) {
	normalized := textutil.NormalizeEntityName(name)
	var doc mongoEntityDoc
	err := m.entities.FindOne(ctx, bson.M{"name": normalized}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, "mongo get entity", err)
	}
	return &model.Entity{ID: doc.ID, Name: doc.Name, Type: doc.Type, Degree: doc.Degree}, nil
}

func (m *MongoGraphStore) Apply(ctx context.Context, plan model.WritePlan) (model.CommitStats, error) {
	var stats model.CommitStats

	for _, d := range plan.Entities {
		switch d.Action {
		case model.ActionCreate:
			id, genErr := textutil.GenerateID()
			if genErr != nil {
				return stats, genErr
			}
			normalized := textutil.NormalizeEntityName(d.Name)
			_, err := m.entities.UpdateOne(ctx,
				bson.M{"name": normalized},
				bson.M{"$setOnInsert": bson.M{"_id": id, "name": normalized, "type": d.Type, "degree": 0}},
				options.Update().SetUpsert(true))
			if err != nil {
				return stats, errs.Wrap(errs.KindQuery, "mongo create entity", err)
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
			aboutIDs, aboutNames, lookupErr := m.resolveAbout(ctx, d.About)
			if lookupErr != nil {
				return stats, lookupErr
			}
			doc := bson.M{
				"content":     d.Content,
				"space":       model.EffectiveSpace(d.Space),
				"created_at":  time.Now().UTC(),
				"about_ids":   aboutIDs,
				"about_names": aboutNames,
			}
			if t, ok := textutil.ParseTimestamp(d.ValidAt); ok {
				doc["valid_at"] = t
			}
			res, err := m.memories.UpdateOne(ctx,
				bson.M{"_id": id},
				bson.M{"$setOnInsert": doc},
				options.Update().SetUpsert(true))
			if err != nil {
				return stats, errs.Wrap(errs.KindQuery, "mongo add memory", err)
			}
			if res.UpsertedCount > 0 {
				stats.MemoriesAdded++
				if len(aboutIDs) > 0 {
					if _, incErr := m.entities.UpdateMany(ctx,
						bson.M{"_id": bson.M{"$in": aboutIDs}},
						bson.M{"$inc": bson.M{"degree": 1}}); incErr != nil {
						return stats, errs.Wrap(errs.KindQuery, "mongo bump degree", incErr)
					}
				}
			}
		case model.ActionUpdate:
			_, err := m.memories.UpdateByID(ctx, d.TargetID, bson.M{"$set": bson.M{"content": d.Content}})
			if err != nil {
				return stats, errs.Wrap(errs.KindQuery, "mongo update memory", err)
			}
			stats.MemoriesUpdated++
		case model.ActionSkip:
			stats.MemoriesSkipped++
		}
	}

	return stats, nil
}

// resolveAbout maps normalized entity names to (ids, names) pairs for the
// entities that actually exist, dropping names with no entity behind them.
func (m *MongoGraphStore) resolveAbout(ctx context.Context, names []string) ([]string, []string, error) {
	var ids, resolved []string
	for _, name := range names {
		normalized := textutil.NormalizeEntityName(name)
		var doc mongoEntityDoc
		err := m.entities.FindOne(ctx, bson.M{"name": normalized}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			continue
		}
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindQuery, "mongo resolve about entity", err)
		}
		ids = append(ids, doc.ID)
		resolved = append(resolved, doc.Name)
	}
	return ids, resolved, nil
}

// Close disconnects the underlying Mongo client.
func (m *MongoGraphStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
