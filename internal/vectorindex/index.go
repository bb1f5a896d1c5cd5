// Package vectorindex keeps one on-disk vector index per subject and answers
// cosine-similarity queries over it.
package vectorindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimension is returned when vectors of different sizes are mixed.
var ErrDimension = errors.New("vectorindex: dimension mismatch")

// Metadata keys attached to every chunk.
const (
	MetaResourceID  = "resource_id"
	MetaTitle       = "title"
	MetaType        = "type"
	MetaSubjectID   = "subject_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// Entry is one indexed chunk.
type Entry struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Hit is a search result. Score is the cosine similarity to the query.
type Hit struct {
	Entry
	Score float32 `json:"score"`
}

// Index is an in-memory vector index. Entries[i] belongs to Vectors[i].
type Index struct {
	Dim     int
	Entries []Entry
	Vectors [][]float32
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.Entries) }

// Clone returns a copy that can be mutated without affecting ix. Vectors are
// shared because they are never modified in place.
func (ix *Index) Clone() *Index {
	return &Index{
		Dim:     ix.Dim,
		Entries: append([]Entry(nil), ix.Entries...),
		Vectors: append([][]float32(nil), ix.Vectors...),
	}
}

// Add appends entries with their vectors. All vectors must share the index
// dimension, which the first Add on an empty index fixes.
func (ix *Index) Add(entries []Entry, vectors [][]float32) error {
	if len(entries) != len(vectors) {
		return fmt.Errorf("vectorindex: %d entries but %d vectors", len(entries), len(vectors))
	}
	dim := ix.Dim
	if ix.Len() == 0 {
		dim = 0
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector", ErrDimension)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(v), dim)
		}
	}
	if len(vectors) > 0 {
		ix.Dim = dim
	}
	ix.Entries = append(ix.Entries, entries...)
	ix.Vectors = append(ix.Vectors, vectors...)
	return nil
}

// RemoveResource drops every entry whose metadata names resourceID and
// returns how many were removed.
func (ix *Index) RemoveResource(resourceID int64) int {
	keptE := ix.Entries[:0:0]
	keptV := ix.Vectors[:0:0]
	removed := 0
	for i, e := range ix.Entries {
		if id, ok := MetaInt(e.Metadata, MetaResourceID); ok && id == resourceID {
			removed++
			continue
		}
		keptE = append(keptE, e)
		keptV = append(keptV, ix.Vectors[i])
	}
	ix.Entries, ix.Vectors = keptE, keptV
	return removed
}

// Search returns the k entries most similar to query, best first.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if ix.Len() == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != ix.Dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimension, len(query), ix.Dim)
	}
	hits := make([]Hit, len(ix.Entries))
	for i, v := range ix.Vectors {
		hits[i] = Hit{Entry: ix.Entries[i], Score: cosine(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// MetaInt reads an integer metadata value whether it was stored as a Go
// integer or decoded from JSON as a float64 or json.Number.
func MetaInt(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
