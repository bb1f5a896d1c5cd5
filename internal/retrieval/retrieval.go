// Package retrieval answers similarity queries over a subject's indexed
// material.
package retrieval

import (
	"context"
	"fmt"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/vectorindex"
)

// DefaultK is the number of results returned when no limit is given.
const DefaultK = 5

// Index is the part of the vector store the retriever reads from.
type Index interface {
	Exists(subjectID int64) bool
	Search(subjectID int64, query []float32, k int) ([]vectorindex.Hit, error)
}

// Result is one retrieved chunk. Score is the cosine similarity to the
// query, higher is better.
type Result struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"relevance_score"`
}

// Retriever embeds queries and searches the subject index.
type Retriever struct {
	embedder ai.Embedder
	index    Index
}

// New creates a Retriever.
func New(embedder ai.Embedder, index Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Search returns the k chunks of the subject most similar to query. The
// error wraps vectorindex.ErrNoIndex when the subject has not been indexed;
// in that case the query is never embedded.
func (r *Retriever) Search(ctx context.Context, subjectID int64, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultK
	}
	if !r.index.Exists(subjectID) {
		return nil, fmt.Errorf("retrieval: subject %d: %w", subjectID, vectorindex.ErrNoIndex)
	}
	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	hits, err := r.index.Search(subjectID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Content: h.Content, Metadata: h.Metadata, Score: h.Score}
	}
	return out, nil
}
