// Package evidence gathers client-scoped snippets for a deck section and
// shapes them into the single payload handed to a section's flow.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Item is one retrieved snippet and the document it came from.
type Item struct {
	Content string `json:"content"`
	Locator string `json:"locator"`
}

// Store retrieves snippets for one query. Implementations must only return
// evidence that belongs to clientID.
type Store interface {
	Retrieve(ctx context.Context, query, clientID string) ([]Item, error)
}

// QueryFailure records a query whose retrieval failed and was skipped.
type QueryFailure struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// Bundle is the deduplicated, ordered evidence for one section and client.
type Bundle struct {
	SectionID string         `json:"section_id"`
	ClientID  string         `json:"client_id"`
	Items     []Item         `json:"items"`
	Queries   int            `json:"queries"`
	Hits      int            `json:"hits"`
	Failures  []QueryFailure `json:"failures,omitempty"`
}

// Empty reports whether the bundle carries no evidence.
func (b Bundle) Empty() bool {
	return len(b.Items) == 0
}

const separator = "-------------------------------"

// Text renders the items as delimited blocks joined by newlines.
func (b Bundle) Text() string {
	blocks := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		var sb strings.Builder
		sb.WriteString(separator)
		sb.WriteString("\nContent: ")
		sb.WriteString(it.Content)
		sb.WriteString("\nReference: ")
		sb.WriteString(it.Locator)
		sb.WriteString("\n")
		sb.WriteString(separator)
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}

// Payload serializes the bundle into the flow input: the rendered text encoded
// as a JSON string. An empty bundle yields `""`.
func (b Bundle) Payload() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b.Text()); err != nil {
		return "", fmt.Errorf("failed to encode evidence payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// merge flattens per-query results in query order, keeping the first
// occurrence of each (content, locator) pair.
func merge(results [][]Item) ([]Item, int) {
	seen := make(map[Item]struct{})
	out := make([]Item, 0)
	hits := 0
	for _, items := range results {
		hits += len(items)
		for _, it := range items {
			if _, ok := seen[it]; ok {
				continue
			}
			seen[it] = struct{}{}
			out = append(out, it)
		}
	}
	return out, hits
}
