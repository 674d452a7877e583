// Command memento-demo wires an in-memory store, a dummy embedder and a
// dummy LLM into a Memento and walks through one consolidation and one
// retrieval, printing the intermediate write plan and the injected
// request body.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/Protocol-Lattice/memento/pkg/embedclient"
	"github.com/Protocol-Lattice/memento/pkg/llmclient"
	"github.com/Protocol-Lattice/memento/pkg/memento"
)

func main() {
	note := flag.String("note", "I really like using Go and TypeScript together for backend services.", "note to consolidate into the graph")
	query := flag.String("query", "what does the user like to use for backend services?", "query to retrieve against after consolidation")
	flag.Parse()

	ctx := context.Background()
	logger := log.New(os.Stdout, "memento-demo: ", log.LstdFlags)

	store := memento.NewInMemoryStore()
	embedder := embedclient.NewDummyClient(256)
	llm := llmclient.NewDummyClient(dummyRespond)

	m := memento.New(store, embedder, llm, memento.DefaultConfig()).WithLogger(logger)

	logger.Printf("consolidating note: %q", *note)
	plan, err := m.Consolidate(ctx, *note, "", "")
	if err != nil {
		logger.Fatalf("consolidate: %v", err)
	}
	printJSON(logger, "write plan", plan)

	stats, err := m.Apply(ctx, plan)
	if err != nil {
		logger.Fatalf("apply: %v", err)
	}
	printJSON(logger, "commit stats", stats)

	logger.Printf("retrieving for query: %q", *query)
	body := map[string]any{
		"model": "demo-model",
		"messages": []any{
			map[string]any{"role": "user", "content": *query},
		},
	}
	injected := m.HandleRequest(ctx, body, "")
	printJSON(logger, "request body after injection", injected)
}

func printJSON(logger *log.Logger, label string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Printf("%s: (failed to marshal: %v)", label, err)
		return
	}
	logger.Printf("%s:\n%s", label, raw)
}

// dummyRespond gives the dummy LLM a fixed, plausible answer for each
// consolidation call shape so the demo runs end to end without any real
// provider credentials.
func dummyRespond(prompt string) (json.RawMessage, error) {
	switch {
	case strings.Contains(prompt, "Extract entities"):
		return json.RawMessage(`{
			"entities": [
				{"name": "Go", "type": "technology"},
				{"name": "TypeScript", "type": "technology"}
			],
			"memories": [
				{"content": "uses Go and TypeScript together for backend services", "aboutEntities": ["Go", "TypeScript"]}
			]
		}`), nil
	case strings.Contains(prompt, "CREATE") || strings.Contains(prompt, "MATCH"):
		return json.RawMessage(`{"action": "CREATE", "reason": "no existing match in this demo graph"}`), nil
	case strings.Contains(prompt, "ADD") || strings.Contains(prompt, "SKIP"):
		return json.RawMessage(`{"action": "ADD", "reason": "new information"}`), nil
	default:
		return json.RawMessage(`{"shouldUpdate": false}`), nil
	}
}
