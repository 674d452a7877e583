// Package consolidate implements the two-branch consolidation pipeline:
// LLM-driven entity/memory extraction, LLM-driven resolution against
// retrieved context, and the Pipeline state machine that forks, joins and
// plans a WritePlan from the two branches. Each stage is a thin struct
// over a capability interface (pkg/llmclient.LLMClient), with
// schema-enforced completions and retries bounded by errs.RetryPolicy.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/errs"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/textutil"
)

// ExtractedEntity is one entity the extraction stage found in a note,
// before resolution decides whether it's new or already known.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	IsWellKnown bool   `json:"isWellKnown,omitempty"`
}

// ExtractedMemory is one candidate memory the extraction stage found.
type ExtractedMemory struct {
	Content       string   `json:"content"`
	AboutEntities []string `json:"aboutEntities,omitempty"`
	ValidAt       string   `json:"validAt,omitempty"`
}

// ExtractResult is the extraction stage's full output for one note.
type ExtractResult struct {
	Entities              []ExtractedEntity `json:"entities"`
	UserBiographicalFacts string            `json:"userBiographicalFacts,omitempty"`
	Memories              []ExtractedMemory `json:"memories"`
}

// extractSchema is the JSON Schema the LLM is asked to conform to. Kept as
// a package-level value since it never varies across calls.
var extractSchema = llmclient.Schema{
	"type": "object",
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"type":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"isWellKnown": map[string]any{"type": "boolean"},
				},
				"required": []any{"name", "type"},
			},
		},
		"userBiographicalFacts": map[string]any{"type": "string"},
		"memories": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content":       map[string]any{"type": "string"},
					"aboutEntities": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"validAt":       map[string]any{"type": "string"},
				},
				"required": []any{"content"},
			},
		},
	},
	"required": []any{"entities", "memories"},
}

// ExtractionStage runs the LLM-driven entity and memory extraction.
type ExtractionStage struct {
	llm         llmclient.LLMClient
	maxRetries  int
	maxTokens   int
	temperature float64
}

// NewExtractionStage builds an ExtractionStage. maxRetries <= 0 falls back
// to 3, matching errs.DefaultRetryPolicy.
func NewExtractionStage(llm llmclient.LLMClient, maxRetries int) *ExtractionStage {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExtractionStage{llm: llm, maxRetries: maxRetries, maxTokens: 2048, temperature: 0}
}

// Extract calls the LLM with a deterministic prompt built from note, then
// validates and cleans its output: malformed JSON or a schema violation is
// retried up to maxRetries; entities with an empty name or an unknown type
// are dropped; every surviving entity name is normalized.
func (s *ExtractionStage) Extract(ctx context.Context, note string) (ExtractResult, error) {
	if strings.TrimSpace(note) == "" {
		return ExtractResult{}, errs.ErrEmptyInput
	}
	prompt := buildExtractionPrompt(note)

	var result ExtractResult
	policy := errs.RetryPolicy{MaxRetries: s.maxRetries}
	err := errs.Do(ctx, policy, func() error {
		raw, err := s.llm.Complete(ctx, prompt, extractSchema, s.maxTokens, s.temperature)
		if err != nil {
			return err
		}
		var decoded ExtractResult
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return errs.Wrap(errs.KindSchemaViolation, "extraction output did not decode", err)
		}
		result = decoded
		return nil
	})
	if err != nil {
		return ExtractResult{}, err
	}

	result.Entities = cleanEntities(result.Entities)
	return result, nil
}

// cleanEntities drops entities with an empty name or an unknown type and
// normalizes every surviving name.
func cleanEntities(entities []ExtractedEntity) []ExtractedEntity {
	out := make([]ExtractedEntity, 0, len(entities))
	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		typ := strings.TrimSpace(e.Type)
		if name == "" || typ == "" || strings.EqualFold(typ, "unknown") {
			continue
		}
		e.Name = textutil.NormalizeEntityName(name)
		e.Type = typ
		out = append(out, e)
	}
	return out
}

func buildExtractionPrompt(note string) string {
	return fmt.Sprintf(`Extract entities and memories from the following note.

Return JSON matching this shape exactly:
{"entities": [{"name": string, "type": string, "description": string, "isWellKnown": bool}],
 "userBiographicalFacts": string,
 "memories": [{"content": string, "aboutEntities": [string], "validAt": string}]}

Rules:
- "type" must be a concrete category (e.g. "technology", "person", "place"); never the literal "unknown".
- Only include userBiographicalFacts if the note states a fact about the user themself.
- Each memory's aboutEntities must reference names from "entities".

Note:
%s`, note)
}
