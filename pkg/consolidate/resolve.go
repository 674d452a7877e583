package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/model"
	"github.com/Protocol-Lattice/memento/pkg/store"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// CandidateEntity is a possible match for an extracted entity, surfaced to
// the LLM so it can decide CREATE vs MATCH.
type CandidateEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// CandidateMemory is a possible match for an extracted memory.
type CandidateMemory struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type entityDecisionJSON struct {
	Action          string `json:"action"`
	MatchedEntityID string `json:"matchedEntityId,omitempty"`
	Reason          string `json:"reason"`
}

type memoryDecisionJSON struct {
	Action   string `json:"action"`
	TargetID string `json:"targetId,omitempty"`
	Reason   string `json:"reason"`
}

type userDescJSON struct {
	ShouldUpdate bool   `json:"shouldUpdate"`
	Description  string `json:"description,omitempty"`
}

var entityDecisionSchema = llmclient.Schema{
	"type": "object",
	"properties": map[string]any{
		"action":          map[string]any{"type": "string", "enum": []any{"CREATE", "MATCH"}},
		"matchedEntityId": map[string]any{"type": "string"},
		"reason":          map[string]any{"type": "string"},
	},
	"required": []any{"action", "reason"},
}

var memoryDecisionSchema = llmclient.Schema{
	"type": "object",
	"properties": map[string]any{
		"action":   map[string]any{"type": "string", "enum": []any{"ADD", "UPDATE", "SKIP"}},
		"targetId": map[string]any{"type": "string"},
		"reason":   map[string]any{"type": "string"},
	},
	"required": []any{"action", "reason"},
}

var userDescSchema = llmclient.Schema{
	"type": "object",
	"properties": map[string]any{
		"shouldUpdate": map[string]any{"type": "boolean"},
		"description":  map[string]any{"type": "string"},
	},
	"required": []any{"shouldUpdate"},
}

// ResolutionStage turns extracted entities/memories into decisions by
// asking the LLM to choose an action given the candidate matches a
// GraphStore direct lookup and Branch A's retrieved context surface.
// When the LLM emits MATCH/UPDATE without a valid target id, the
// stage repairs the decision to CREATE/ADD rather than producing an
// unsatisfiable write plan, and counts the repair in PipelineStats.
type ResolutionStage struct {
	llm        llmclient.LLMClient
	store      store.GraphStore
	maxRetries int
	maxTokens  int
}

// NewResolutionStage builds a ResolutionStage.
func NewResolutionStage(llm llmclient.LLMClient, s store.GraphStore, maxRetries int) *ResolutionStage {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ResolutionStage{llm: llm, store: s, maxRetries: maxRetries, maxTokens: 512}
}

// ResolveEntity decides CREATE vs MATCH for one extracted entity against
// its candidate matches, reporting whether the decision was repaired and
// how many completion retries it took.
func (r *ResolutionStage) ResolveEntity(ctx context.Context, e ExtractedEntity, candidates []CandidateEntity) (model.EntityDecision, bool, int, error) {
	prompt := buildEntityResolutionPrompt(e, candidates)
	var decoded entityDecisionJSON
	policy := errs.RetryPolicy{MaxRetries: r.maxRetries}
	attempts, err := errs.Attempts(ctx, policy, func() error {
		raw, err := r.llm.Complete(ctx, prompt, entityDecisionSchema, r.maxTokens, 0)
		if err != nil {
			return err
		}
		var d entityDecisionJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return errs.Wrap(errs.KindSchemaViolation, "entity decision did not decode", err)
		}
		decoded = d
		return nil
	})
	retried := attempts - 1
	if err != nil {
		return model.EntityDecision{}, false, retried, err
	}

	decision := model.EntityDecision{
		Name:      e.Name,
		Type:      e.Type,
		Action:    model.DecisionAction(strings.ToUpper(decoded.Action)),
		MatchedID: decoded.MatchedEntityID,
		Reason:    decoded.Reason,
	}
	repaired := false
	if decision.Action == model.ActionMatch && decision.MatchedID == "" {
		decision.Action = model.ActionCreate
		decision.Reason = "repaired: MATCH without matchedEntityId (" + decision.Reason + ")"
		repaired = true
	}
	if decision.Action != model.ActionCreate && decision.Action != model.ActionMatch {
		decision.Action = model.ActionCreate
		decision.Reason = "repaired: unrecognized action (" + decoded.Action + ")"
		repaired = true
	}
	return decision, repaired, retried, nil
}

// ResolveMemory decides ADD/UPDATE/SKIP for one extracted memory against
// its candidate matches, with the same repair/retry reporting as
// ResolveEntity.
func (r *ResolutionStage) ResolveMemory(ctx context.Context, m ExtractedMemory, candidates []CandidateMemory) (model.MemoryDecision, bool, int, error) {
	prompt := buildMemoryResolutionPrompt(m, candidates)
	var decoded memoryDecisionJSON
	policy := errs.RetryPolicy{MaxRetries: r.maxRetries}
	attempts, err := errs.Attempts(ctx, policy, func() error {
		raw, err := r.llm.Complete(ctx, prompt, memoryDecisionSchema, r.maxTokens, 0)
		if err != nil {
			return err
		}
		var d memoryDecisionJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return errs.Wrap(errs.KindSchemaViolation, "memory decision did not decode", err)
		}
		decoded = d
		return nil
	})
	retried := attempts - 1
	if err != nil {
		return model.MemoryDecision{}, false, retried, err
	}

	decision := model.MemoryDecision{
		Content:  m.Content,
		Action:   model.DecisionAction(strings.ToUpper(decoded.Action)),
		TargetID: decoded.TargetID,
		Reason:   decoded.Reason,
	}
	repaired := false
	if decision.Action == model.ActionUpdate && decision.TargetID == "" {
		decision.Action = model.ActionAdd
		decision.Reason = "repaired: UPDATE without targetId (" + decision.Reason + ")"
		repaired = true
	}
	switch decision.Action {
	case model.ActionAdd, model.ActionUpdate, model.ActionSkip:
	default:
		decision.Action = model.ActionAdd
		decision.Reason = "repaired: unrecognized action (" + decoded.Action + ")"
		repaired = true
	}
	return decision, repaired, retried, nil
}

// ResolveUserDescription asks the LLM whether biographicalFacts warrant
// updating the stored user description, returning ("", false, 0, nil)
// without a completion call when facts is empty.
func (r *ResolutionStage) ResolveUserDescription(ctx context.Context, facts, existingDescription string) (string, bool, int, error) {
	if strings.TrimSpace(facts) == "" {
		return "", false, 0, nil
	}
	prompt := buildUserDescPrompt(facts, existingDescription)
	var decoded userDescJSON
	policy := errs.RetryPolicy{MaxRetries: r.maxRetries}
	attempts, err := errs.Attempts(ctx, policy, func() error {
		raw, err := r.llm.Complete(ctx, prompt, userDescSchema, r.maxTokens, 0)
		if err != nil {
			return err
		}
		var d userDescJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return errs.Wrap(errs.KindSchemaViolation, "user description decision did not decode", err)
		}
		decoded = d
		return nil
	})
	retried := attempts - 1
	if err != nil {
		return "", false, retried, err
	}
	if !decoded.ShouldUpdate {
		return "", false, retried, nil
	}
	return decoded.Description, true, retried, nil
}

// CandidatesForEntity gathers the resolution candidates for an extracted
// entity: a direct store lookup by normalized name plus any entities
// named in Branch A's retrieved context.
func CandidatesForEntity(ctx context.Context, s store.GraphStore, e ExtractedEntity, context model.RetrievalResult) ([]CandidateEntity, error) {
	seen := make(map[string]bool)
	var out []CandidateEntity

	direct, err := s.GetEntityByName(ctx, e.Name)
	if err != nil {
		return nil, err
	}
	if direct != nil {
		out = append(out, CandidateEntity{ID: direct.ID, Name: direct.Name, Type: direct.Type})
		seen[direct.ID] = true
	}

	normalized := textutil.NormalizeEntityName(e.Name)
	for _, sm := range context.Memories {
		for _, name := range sm.AboutNames {
			if textutil.NormalizeEntityName(name) != normalized {
				continue
			}
			ent, err := s.GetEntityByName(ctx, name)
			if err != nil || ent == nil || seen[ent.ID] {
				continue
			}
			out = append(out, CandidateEntity{ID: ent.ID, Name: ent.Name, Type: ent.Type})
			seen[ent.ID] = true
		}
	}
	return out, nil
}

// CandidatesForMemory gathers near-duplicate candidate memories from
// Branch A's context for resolving ADD vs UPDATE vs SKIP.
func CandidatesForMemory(context model.RetrievalResult, limit int) []CandidateMemory {
	if limit <= 0 || limit > len(context.Memories) {
		limit = len(context.Memories)
	}
	out := make([]CandidateMemory, 0, limit)
	for i := 0; i < limit; i++ {
		sm := context.Memories[i]
		out = append(out, CandidateMemory{ID: sm.Memory.ID, Content: sm.Memory.Content})
	}
	return out
}

func buildEntityResolutionPrompt(e ExtractedEntity, candidates []CandidateEntity) string {
	cjson, _ := json.Marshal(candidates)
	return fmt.Sprintf(`Decide whether the extracted entity below already exists among the candidates.

Extracted entity: name=%q type=%q description=%q

Candidate matches (existing entities): %s

Return JSON: {"action": "CREATE"|"MATCH", "matchedEntityId": string (required if MATCH), "reason": string}`,
		e.Name, e.Type, e.Description, string(cjson))
}

func buildMemoryResolutionPrompt(m ExtractedMemory, candidates []CandidateMemory) string {
	cjson, _ := json.Marshal(candidates)
	return fmt.Sprintf(`Decide what to do with the extracted memory below given similar existing memories.

Extracted memory: %q

Similar existing memories: %s

Return JSON: {"action": "ADD"|"UPDATE"|"SKIP", "targetId": string (required if UPDATE), "reason": string}`,
		m.Content, string(cjson))
}

func buildUserDescPrompt(facts, existing string) string {
	return fmt.Sprintf(`The user stated these biographical facts: %q

Current stored user description: %q

Should the stored description be updated to incorporate these facts?
Return JSON: {"shouldUpdate": bool, "description": string (the new full description, required if shouldUpdate)}`,
		facts, existing)
}
