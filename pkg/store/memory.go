package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
	"github.com/Protocol-Lattice/memento/pkg/vectormath"
)

// InMemoryStore is a GraphStore for tests and lightweight deployments: a
// mutex-guarded map with brute-force cosine search in place of an ANN
// index, plus an entity table and entity<->memory edges.
type InMemoryStore struct {
	mu        sync.RWMutex
	entities  map[string]model.Entity // keyed by id
	byName    map[string]string       // entity name -> id
	memories  map[string]model.Memory
	about     map[string][]string // memory id -> entity ids
	backlinks map[string][]string // entity id -> memory ids
}

var _ GraphStore = (*InMemoryStore)(nil)
var _ Pruner = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entities:  make(map[string]model.Entity),
		byName:    make(map[string]string),
		memories:  make(map[string]model.Memory),
		about:     make(map[string][]string),
		backlinks: make(map[string][]string),
	}
}

func (s *InMemoryStore) SearchVector(_ context.Context, embedding model.Embedding, k int, space string) ([]model.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	want := model.EffectiveSpace(space)
	scored := make([]model.ScoredMemory, 0, len(s.memories))
	for _, m := range s.memories {
		if model.EffectiveSpace(m.Space) != want {
			continue
		}
		score := vectormath.Cosine(embedding, m.Embedding)
		scored = append(scored, model.ScoredMemory{Memory: m, Score: score, Source: model.SourceVector, AboutNames: s.aboutNamesLocked(m.ID)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return truncate(scored, k), nil
}

// SearchFulltext does a case-insensitive term-overlap scan over content.
// luceneQuery arrives already escaped (textutil.SanitizeLucene); this
// in-memory store un-escapes it back to plain terms since it has no
// actual Lucene index to query.
func (s *InMemoryStore) SearchFulltext(_ context.Context, luceneQuery string, k int, space string) ([]model.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(unescapeLucene(luceneQuery)))
	if len(terms) == 0 {
		return nil, nil
	}
	want := model.EffectiveSpace(space)
	scored := make([]model.ScoredMemory, 0, len(s.memories))
	for _, m := range s.memories {
		if model.EffectiveSpace(m.Space) != want {
			continue
		}
		lower := strings.ToLower(m.Content)
		hits := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(terms))
		scored = append(scored, model.ScoredMemory{Memory: m, Score: score, Source: model.SourceFulltext, AboutNames: s.aboutNamesLocked(m.ID)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return truncate(scored, k), nil
}

func (s *InMemoryStore) Neighbors(_ context.Context, entityID string, _ int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memIDs := s.backlinks[entityID]
	out := make([]Neighbor, 0, len(memIDs))
	for _, mid := range memIDs {
		out = append(out, Neighbor{EntityID: entityID, MemoryID: mid})
	}
	return out, nil
}

func (s *InMemoryStore) GetMemoryByID(_ context.Context, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, nil
	}
	m.About = append([]string(nil), s.about[id]...)
	return &m, nil
}

func (s *InMemoryStore) GetEntityByName(_ context.Context, name string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[textutil.NormalizeEntityName(name)]
	if !ok {
		return nil, nil
	}
	e := s.entities[id]
	return &e, nil
}

// Apply materializes a WritePlan, creating or matching entities and
// adding/updating/skipping memories. It is idempotent: re-applying the
// same plan after entities/memories already exist by id is a no-op for
// those decisions (CREATE for an already-present name resolves to the
// existing id instead of duplicating it).
func (s *InMemoryStore) Apply(_ context.Context, plan model.WritePlan) (model.CommitStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.CommitStats
	resolvedByName := make(map[string]string, len(plan.Entities))

	for _, d := range plan.Entities {
		normalized := textutil.NormalizeEntityName(d.Name)
		switch d.Action {
		case model.ActionMatch:
			if _, ok := s.entities[d.MatchedID]; ok {
				resolvedByName[normalized] = d.MatchedID
				stats.EntitiesMatched++
				continue
			}
			fallthrough
		case model.ActionCreate:
			if existingID, ok := s.byName[normalized]; ok {
				resolvedByName[normalized] = existingID
				stats.EntitiesMatched++
				continue
			}
			id, err := textutil.GenerateID()
			if err != nil {
				return stats, err
			}
			s.entities[id] = model.Entity{ID: id, Name: normalized, Type: d.Type}
			s.byName[normalized] = id
			resolvedByName[normalized] = id
			stats.EntitiesCreated++
		}
	}

	for _, d := range plan.Memories {
		switch d.Action {
		case model.ActionSkip:
			stats.MemoriesSkipped++
		case model.ActionUpdate:
			if existing, ok := s.memories[d.TargetID]; ok {
				existing.Content = d.Content
				s.memories[d.TargetID] = existing
				stats.MemoriesUpdated++
				continue
			}
			fallthrough
		case model.ActionAdd:
			id := d.ID
			if id == "" {
				var genErr error
				id, genErr = textutil.GenerateID()
				if genErr != nil {
					return stats, genErr
				}
			}
			if _, exists := s.memories[id]; exists {
				// A replayed plan carries the id it was materialized with;
				// the memory already exists, so this apply is a no-op.
				continue
			}
			mem := model.Memory{ID: id, Content: d.Content, Space: d.Space, CreatedAt: time.Now().UTC()}
			if t, ok := textutil.ParseTimestamp(d.ValidAt); ok {
				mem.ValidAt = &t
			}
			for _, name := range d.About {
				normalized := textutil.NormalizeEntityName(name)
				eid, ok := resolvedByName[normalized]
				if !ok {
					eid, ok = s.byName[normalized]
				}
				if !ok {
					continue
				}
				mem.About = append(mem.About, eid)
				s.about[id] = append(s.about[id], eid)
				s.backlinks[eid] = append(s.backlinks[eid], id)
				e := s.entities[eid]
				e.Degree++
				s.entities[eid] = e
			}
			s.memories[id] = mem
			stats.MemoriesAdded++
		}
	}

	return stats, nil
}

// Prune evicts memories created before the cutoff, unlinking them from
// their entities and decrementing each touched entity's degree. Memories
// with a zero CreatedAt (hand-built fixtures) are left alone.
func (s *InMemoryStore) Prune(_ context.Context, olderThanDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	evicted := 0
	for id, m := range s.memories {
		if m.CreatedAt.IsZero() || !m.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.memories, id)
		for _, eid := range s.about[id] {
			s.backlinks[eid] = removeString(s.backlinks[eid], id)
			if e, ok := s.entities[eid]; ok && e.Degree > 0 {
				e.Degree--
				s.entities[eid] = e
			}
		}
		delete(s.about, id)
		evicted++
	}
	return evicted, nil
}

// LinkMemory is test/adapter plumbing: records that memory references
// entity (building the about/backlinks indexes SearchVector/Neighbors
// rely on). Not part of the GraphStore interface; callers that build a
// graph by hand (tests, the demo) use it directly.
func (s *InMemoryStore) LinkMemory(memory model.Memory, entityIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[memory.ID] = memory
	s.about[memory.ID] = entityIDs
	for _, eid := range entityIDs {
		s.backlinks[eid] = append(s.backlinks[eid], memory.ID)
		if e, ok := s.entities[eid]; ok {
			e.Degree++
			s.entities[eid] = e
		}
	}
}

// PutEntity is test/adapter plumbing mirroring LinkMemory for entities.
func (s *InMemoryStore) PutEntity(e model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	s.byName[e.Name] = e.ID
}

func (s *InMemoryStore) aboutNamesLocked(memoryID string) []string {
	ids := s.about[memoryID]
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			names = append(names, e.Name)
		}
	}
	return names
}

func truncate(scored []model.ScoredMemory, k int) []model.ScoredMemory {
	if len(scored) > k {
		return scored[:k]
	}
	return scored
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

func unescapeLucene(s string) string {
	return strings.NewReplacer(
		`\+`, "+", `\-`, "-", `\&`, "&", `\|`, "|", `\!`, "!",
		`\(`, "(", `\)`, ")", `\{`, "{", `\}`, "}", `\[`, "[", `\]`, "]",
		`\^`, "^", `\"`, `"`, `\~`, "~", `\*`, "*", `\?`, "?", `\:`, ":",
		`\\`, `\`, `\/`, "/",
	).Replace(s)
}
