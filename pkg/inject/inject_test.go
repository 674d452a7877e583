package inject

import (
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/memento/pkg/model"
)

func sampleResult() model.RetrievalResult {
	return model.RetrievalResult{Memories: []model.ScoredMemory{
		{Memory: model.Memory{ID: "m1", Content: "prefers TypeScript", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}},
	}}
}

func TestInjectStringContent(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "Hello"},
		},
	}
	out := Inject(body, sampleResult())

	msg := out["messages"].([]any)[0].(map[string]any)
	content := msg["content"].(string)
	if !strings.HasPrefix(content, "<memento>") {
		t.Fatalf("expected content to start with the memento block, got %q", content)
	}
	if !strings.HasSuffix(content, "Hello") {
		t.Fatalf("expected original content preserved at the end, got %q", content)
	}
	if !strings.Contains(content, "</memento>\n\nHello") {
		t.Fatalf("expected two trailing newlines before the original content, got %q", content)
	}
}

func TestInjectArrayContent(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "text", "text": "original"},
			}},
		},
	}
	out := Inject(body, sampleResult())

	msg := out["messages"].([]any)[0].(map[string]any)
	blocks := msg["content"].([]any)
	if len(blocks) != 2 {
		t.Fatalf("expected a new block prepended, got %d blocks", len(blocks))
	}
	first := blocks[0].(map[string]any)
	if first["type"] != "text" {
		t.Fatalf("expected the prepended block to have type text, got %+v", first)
	}
}

func TestInjectPicksLastUserMessage(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "first"},
			map[string]any{"role": "assistant", "content": "reply"},
			map[string]any{"role": "user", "content": "second"},
		},
	}
	out := Inject(body, sampleResult())

	messages := out["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["content"] != "first" {
		t.Fatalf("expected the earlier user message untouched, got %+v", first)
	}
	last := messages[2].(map[string]any)
	content := last["content"].(string)
	if !strings.HasSuffix(content, "second") {
		t.Fatalf("expected the last user message to carry the injected block, got %q", content)
	}
}

func TestInjectNoopWithoutUserMessage(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "assistant", "content": "hi"},
		},
	}
	out := Inject(body, sampleResult())
	messages := out["messages"].([]any)
	msg := messages[0].(map[string]any)
	if msg["content"] != "hi" {
		t.Fatalf("expected body unchanged when there is no user message, got %+v", out)
	}
}

func TestInjectNoopWithEmptyResult(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "Hello"},
		},
	}
	out := Inject(body, model.RetrievalResult{})
	msg := out["messages"].([]any)[0].(map[string]any)
	if msg["content"] != "Hello" {
		t.Fatalf("expected body unchanged with an empty retrieval result, got %+v", out)
	}
}

func TestInjectPreservesOtherFields(t *testing.T) {
	body := map[string]any{
		"model": "claude-opus",
		"messages": []any{
			map[string]any{"role": "user", "content": "Hello"},
		},
	}
	out := Inject(body, sampleResult())
	if out["model"] != "claude-opus" {
		t.Fatalf("expected unrelated top-level fields preserved, got %+v", out)
	}
}

func TestRenderEmptyResult(t *testing.T) {
	if got := Render(model.RetrievalResult{}); got != "" {
		t.Fatalf("expected empty render for an empty result, got %q", got)
	}
}
