// Package inject implements the injection formatter: it renders a
// RetrievalResult as a <memento> XML block and prepends it to the last
// user turn of an outgoing chat-completion request body. It is pure (no
// I/O, no store access) and works directly on the map[string]any body
// rather than a typed request struct, since the body shape varies by
// upstream provider.
package inject

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/model"
)

// Render builds the <memento>...</memento> block for result, with two
// trailing newlines. An empty result renders to
// the empty string so callers can treat it as "nothing to inject".
func Render(result model.RetrievalResult) string {
	if len(result.Memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<memento>\n")
	for _, sm := range result.Memories {
		createdAt := sm.Memory.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")
		b.WriteString(fmt.Sprintf("  <memory id=%q created_at=%q>%s</memory>\n",
			sm.Memory.ID, createdAt, escapeXML(sm.Memory.Content)))
	}
	b.WriteString("</memento>\n\n")
	return b.String()
}

// Inject prepends the rendered memento block to the last user-role
// message in body. The body is treated as a decoded JSON object
// (map[string]any), matching every provider's chat-completion shape; a
// new body is returned, and body is left unmodified. It is a no-op,
// returning body unchanged, when there is no user message or no memento
// content to inject.
func Inject(body map[string]any, result model.RetrievalResult) map[string]any {
	block := Render(result)
	if block == "" {
		return body
	}

	rawMessages, ok := body["messages"].([]any)
	if !ok {
		return body
	}

	lastUser := -1
	for i := len(rawMessages) - 1; i >= 0; i-- {
		msg, ok := rawMessages[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role == "user" {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return body
	}

	out := shallowCopyBody(body)
	outMessages := make([]any, len(rawMessages))
	copy(outMessages, rawMessages)

	target := shallowCopyMessage(rawMessages[lastUser].(map[string]any))
	target["content"] = prependToContent(target["content"], block)
	outMessages[lastUser] = target
	out["messages"] = outMessages
	return out
}

// prependToContent handles the two content shapes a chat body carries: a
// plain string gets the block prepended directly; an array of content
// blocks gets a new {"type":"text","text":block} inserted at index 0.
func prependToContent(content any, block string) any {
	switch c := content.(type) {
	case string:
		return block + c
	case []any:
		out := make([]any, 0, len(c)+1)
		out = append(out, map[string]any{"type": "text", "text": block})
		out = append(out, c...)
		return out
	default:
		return content
	}
}

func shallowCopyBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}

func shallowCopyMessage(msg map[string]any) map[string]any {
	out := make(map[string]any, len(msg))
	for k, v := range msg {
		out[k] = v
	}
	return out
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
